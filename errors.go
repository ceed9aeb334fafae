package txbuilder

import "errors"

// Sentinel errors returned by Builder.Build and its helpers. Callers should
// use errors.Is against these rather than matching error strings. Errors for
// the conditions below wrap the matching sentinel via fmt.Errorf("...: %w");
// errors passed up from the chain context or from CBOR encoding wrap their
// own cause instead.
var (
	// ErrInvalidArgument signals that a caller violated a precondition, such
	// as adding a script input whose UTxO address is not a script address,
	// or supplying a datum whose hash does not match the UTxO's datum hash.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransaction signals that the selected inputs cannot cover
	// the declared outputs plus fee, or that the assembled transaction
	// exceeds max_tx_size.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInsufficientUTxOBalance signals that change would violate the
	// minimum-ADA requirement on a non-final change bucket.
	ErrInsufficientUTxOBalance = errors.New("insufficient utxo balance")

	// ErrUTxOSelection signals that every registered selector failed against
	// the candidate pool.
	ErrUTxOSelection = errors.New("utxo selection failed")

	// ErrTransactionBuilder signals a builder-state conflict, such as a UTxO
	// present in both inputs and excluded-inputs.
	ErrTransactionBuilder = errors.New("transaction builder error")
)
