package bundle

import "fmt"

// Kind identifies one class of bundle validation failure. Validation runs
// before any persistent state is created, so every kind is fully recoverable
// by resubmitting a corrected bundle.
type Kind string

const (
	KindMissingMasterPlaylist   Kind = "missing_master_playlist"
	KindAmbiguousMasterPlaylist Kind = "ambiguous_master_playlist"
	KindDanglingReference       Kind = "dangling_reference"
	KindPlaylistCycle           Kind = "playlist_cycle"
	KindOrphanFile              Kind = "orphan_file"
	KindEmptyFile               Kind = "empty_file"
	KindBundleTooLarge          Kind = "bundle_too_large"
)

// ValidationError carries the failure kind plus the file (and, where useful,
// the reference) that triggered it.
type ValidationError struct {
	Kind   Kind
	File   string
	Detail string
}

func (e *ValidationError) Error() string {
	switch {
	case e.File != "" && e.Detail != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.File, e.Detail)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.File)
	default:
		return string(e.Kind)
	}
}

func errOf(kind Kind, file, detail string) *ValidationError {
	return &ValidationError{Kind: kind, File: file, Detail: detail}
}
