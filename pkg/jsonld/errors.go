package jsonld

import (
	"errors"
	"fmt"
)

// ErrorCode is a normative JSON-LD error code string.
type ErrorCode string

const (
	CollidingKeywords           ErrorCode = "colliding keywords"
	ConflictingIndexes          ErrorCode = "conflicting indexes"
	ContextOverflow             ErrorCode = "context overflow"
	CyclicIRIMapping            ErrorCode = "cyclic IRI mapping"
	InvalidBaseDirection        ErrorCode = "invalid base direction"
	InvalidBaseIRI              ErrorCode = "invalid base IRI"
	InvalidContainerMapping     ErrorCode = "invalid container mapping"
	InvalidContextEntry         ErrorCode = "invalid context entry"
	InvalidContextNullification ErrorCode = "invalid context nullification"
	InvalidDefaultLanguage      ErrorCode = "invalid default language"
	InvalidEmbedValue           ErrorCode = "invalid @embed value"
	InvalidFrame                ErrorCode = "invalid frame"
	InvalidIDValue              ErrorCode = "invalid @id value"
	InvalidImportValue          ErrorCode = "invalid @import value"
	InvalidIncludedValue        ErrorCode = "invalid @included value"
	InvalidIndexValue           ErrorCode = "invalid @index value"
	InvalidInput                ErrorCode = "invalid input"
	InvalidIRIMapping           ErrorCode = "invalid IRI mapping"
	InvalidJSONLiteral          ErrorCode = "invalid JSON literal"
	InvalidKeywordAlias         ErrorCode = "invalid keyword alias"
	InvalidLanguageMapValue     ErrorCode = "invalid language map value"
	InvalidLanguageMapping      ErrorCode = "invalid language mapping"
	InvalidLanguageTaggedString ErrorCode = "invalid language-tagged string"
	InvalidLanguageTaggedValue  ErrorCode = "invalid language-tagged value"
	InvalidLocalContext         ErrorCode = "invalid local context"
	InvalidNestValue            ErrorCode = "invalid @nest value"
	InvalidPrefixValue          ErrorCode = "invalid @prefix value"
	InvalidPropagateValue       ErrorCode = "invalid @propagate value"
	InvalidProtectedValue       ErrorCode = "invalid @protected value"
	InvalidRemoteContext        ErrorCode = "invalid remote context"
	InvalidReverseProperty      ErrorCode = "invalid reverse property"
	InvalidReversePropertyMap   ErrorCode = "invalid reverse property map"
	InvalidReversePropertyValue ErrorCode = "invalid reverse property value"
	InvalidReverseValue         ErrorCode = "invalid @reverse value"
	InvalidScopedContext        ErrorCode = "invalid scoped context"
	InvalidSetOrListObject      ErrorCode = "invalid set or list object"
	InvalidTermDefinition       ErrorCode = "invalid term definition"
	InvalidTypeMapping          ErrorCode = "invalid type mapping"
	InvalidTypeValue            ErrorCode = "invalid type value"
	InvalidTypedValue           ErrorCode = "invalid typed value"
	InvalidValueObject          ErrorCode = "invalid value object"
	InvalidValueObjectValue     ErrorCode = "invalid value object value"
	InvalidVersionValue         ErrorCode = "invalid @version value"
	InvalidVocabMapping         ErrorCode = "invalid vocab mapping"
	IRIConfusedWithPrefix       ErrorCode = "IRI confused with prefix"
	KeywordRedefinition         ErrorCode = "keyword redefinition"
	ListOfLists                 ErrorCode = "list of lists"
	LoadingDocumentFailed       ErrorCode = "loading document failed"
	LoadingRemoteContextFailed  ErrorCode = "loading remote context failed"
	MultipleContextLinkHeaders  ErrorCode = "multiple context link headers"
	ProcessingModeConflict      ErrorCode = "processing mode conflict"
	ProtectedTermRedefinition   ErrorCode = "protected term redefinition"
	RecursiveContextInclusion   ErrorCode = "recursive context inclusion"
)

// Error is the single failure type of the JSON-LD algorithms. Code is the
// normative error code; Message and Err carry detail.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrCollidingKeywords           = &Error{Code: CollidingKeywords}
	ErrCyclicIRIMapping            = &Error{Code: CyclicIRIMapping}
	ErrInvalidTermDefinition       = &Error{Code: InvalidTermDefinition}
	ErrInvalidTypeValue            = &Error{Code: InvalidTypeValue}
	ErrInvalidValueObject          = &Error{Code: InvalidValueObject}
	ErrInvalidLanguageTaggedString = &Error{Code: InvalidLanguageTaggedString}
	ErrListOfLists                 = &Error{Code: ListOfLists}
	ErrLoadingDocumentFailed       = &Error{Code: LoadingDocumentFailed}
	ErrLoadingRemoteContextFailed  = &Error{Code: LoadingRemoteContextFailed}
	ErrProtectedTermRedefinition   = &Error{Code: ProtectedTermRedefinition}
	ErrRecursiveContextInclusion   = &Error{Code: RecursiveContextInclusion}
	ErrInvalidFrame                = &Error{Code: InvalidFrame}
)

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the JSON-LD error code carried by err, or "" if err is not
// (and does not wrap) an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
