package install

// Kind classifies a fatal failure of a conditional install.
type Kind int

const (
	// KindPrecondition means the source file is missing.
	KindPrecondition Kind = iota + 1
	// KindConfiguration means a required coordinate is missing.
	KindConfiguration
	// KindDescriptor means the project could not be built.
	KindDescriptor
	// KindInstall means the installer failed.
	KindInstall
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindConfiguration:
		return "configuration"
	case KindDescriptor:
		return "descriptor"
	case KindInstall:
		return "install"
	}
	return "unknown"
}

var (
	ErrPrecondition  = &Error{Kind: KindPrecondition, Message: "precondition failed"}
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
	ErrDescriptor    = &Error{Kind: KindDescriptor, Message: "invalid project descriptor"}
	ErrInstall       = &Error{Kind: KindInstall, Message: "install failed"}
)

// Error is returned by ConditionalInstaller.Run for every fatal failure.
// Use errors.Is with the Err* values to match the kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}
