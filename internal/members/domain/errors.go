package domain

import "errors"

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrInvalidMember   = errors.New("invalid member")
	ErrImportTooLarge  = errors.New("import exceeds member limit")
	ErrUnsupportedFile = errors.New("unsupported import file")
	ErrMissingColumns  = errors.New("missing required columns")
	ErrEmptyImport     = errors.New("import file has no rows")
)
