package custody

import "context"

// Disabled is used where no secure backend exists: nothing can be stored and
// nothing is ever found.
type Disabled struct{}

func (Disabled) Create(context.Context) (string, string, error) {
	return "", "", ErrCustodyDisabled
}

func (Disabled) Import(context.Context, string) (string, error) {
	return "", ErrCustodyDisabled
}

func (Disabled) GetPrivateKey(context.Context, string) (string, error) {
	return "", ErrKeyNotFound
}

func (Disabled) Delete(context.Context, string) (bool, error) {
	return false, nil
}

func (Disabled) Name() string { return "disabled" }
