package reversediff

import "errors"

// ErrIncompatibleFromAndDiffFiles is returned when a delta index entry
// refers to a base block index outside [0, num_blocks_base).
var ErrIncompatibleFromAndDiffFiles = errors.New("reversediff: delta references a base block index out of range")

// ErrBadBackupStoreFile is returned when the base object fails a structural
// precondition reverse-diff requires: its index refers to another object
// (other_file_id != 0), or one of its index entries has a non-positive
// encoded_size, or its header and index disagree on the block count.
var ErrBadBackupStoreFile = errors.New("reversediff: base object is not a valid self-contained backup store file")
