package driver

// Kind identifies a backend implementation.
type Kind string

const (
	KindKernel    Kind = "wg-quick"
	KindUserspace Kind = "go"
)

func (k Kind) String() string {
	return string(k)
}
