package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedFile   = errors.New("unsupported file format")
	ErrPathNotAccessible = errors.New("path is not accessible")

	// Container Errors
	ErrMalformedHeader      = errors.New("malformed container header")
	ErrContentMismatch      = errors.New("content index bitmap does not match title metadata")
	ErrContentNotFound      = errors.New("content not present in container")
	ErrSectionNotFound      = errors.New("section not present in container")
	ErrMissingCryptoEngine  = errors.New("no crypto engine supplied for encrypted content")
	ErrMalformedTMD         = errors.New("malformed title metadata record")
	ErrMalformedTicket      = errors.New("malformed ticket")
	ErrUnsupportedSignature = errors.New("unsupported signature type")

	// Key Errors
	ErrMissingKey     = errors.New("required key material not loaded")
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrInvalidKeyslot = errors.New("invalid keyslot")

	// File & Directory Errors
	ErrFileNotFound       = errors.New("file not found")
	ErrFileReadError      = errors.New("error reading file")
	ErrFileWriteError     = errors.New("error writing to file")
	ErrFileCreateFailed   = errors.New("failed to create destination file")
	ErrDirNotFound        = errors.New("directory not found")
	ErrDirPermissionError = errors.New("error setting directory permissions")

	// Configuration Errors
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParseError   = errors.New("error parsing configuration")
	ErrNotInitialized     = errors.New("component not initialized")
)
