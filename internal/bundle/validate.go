// Package bundle validates an uploaded HLS bundle before anything is
// persisted: exactly one master playlist, every reference resolved inside the
// bundle, no orphans, no empty files, total size under the cap.
package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/grafov/m3u8"
)

// File describes one uploaded file by declared name and size. Content is read
// through a Source only for playlist files.
type File struct {
	Name string
	Size int64
}

// Source provides file content by name. The staging area implements it; tests
// use an in-memory map.
type Source interface {
	ReadFile(name string) ([]byte, error)
}

// Result is the derived metadata of an accepted bundle.
type Result struct {
	Master    string
	FileCount int
	TotalSize int64
}

// Validator holds the validation limits.
type Validator struct {
	// MaxBundleBytes caps the aggregate declared size. Zero means no cap.
	MaxBundleBytes int64
	// PlaylistDepth is how many levels of media playlists may sit below the
	// master. The default of 1 allows master -> media -> segments.
	PlaylistDepth int
}

// masterNames are accepted as the master playlist by name alone,
// case-sensitive.
var masterNames = map[string]struct{}{
	"playlist.m3u8": {},
	"master.m3u8":   {},
	"index.m3u8":    {},
}

// Validate inspects the bundle and returns its derived metadata, or the first
// ValidationError found. It never mutates anything.
func (v *Validator) Validate(files []File, src Source) (*Result, error) {
	if len(files) == 0 {
		return nil, errOf(KindMissingMasterPlaylist, "", "empty bundle")
	}

	byName := make(map[string]File, len(files))
	var total int64
	for _, f := range files {
		if f.Size == 0 {
			return nil, errOf(KindEmptyFile, f.Name, "")
		}
		total += f.Size
		byName[f.Name] = f
	}
	if v.MaxBundleBytes > 0 && total > v.MaxBundleBytes {
		return nil, errOf(KindBundleTooLarge, "",
			fmt.Sprintf("%d bytes exceeds limit of %d", total, v.MaxBundleBytes))
	}

	master, err := v.findMaster(files, src)
	if err != nil {
		return nil, err
	}

	reached := map[string]bool{master: true}
	active := map[string]bool{master: true}
	if err := v.resolve(master, 0, v.depthLimit(), reached, active, byName, src); err != nil {
		return nil, err
	}

	for _, f := range files {
		if !reached[f.Name] {
			return nil, errOf(KindOrphanFile, f.Name, "not referenced by any playlist")
		}
	}

	return &Result{Master: master, FileCount: len(files), TotalSize: total}, nil
}

// findMaster applies the exactly-one-master rule: a fixed accepted name, or a
// playlist file whose content classifies as a master playlist.
func (v *Validator) findMaster(files []File, src Source) (string, error) {
	var masters []string
	for _, f := range files {
		if _, ok := masterNames[f.Name]; ok {
			masters = append(masters, f.Name)
			continue
		}
		if !isPlaylistName(f.Name) {
			continue
		}
		data, err := src.ReadFile(f.Name)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		if classify(data) == m3u8.MASTER {
			masters = append(masters, f.Name)
		}
	}
	switch len(masters) {
	case 0:
		return "", errOf(KindMissingMasterPlaylist, "", "")
	case 1:
		return masters[0], nil
	default:
		return "", errOf(KindAmbiguousMasterPlaylist, strings.Join(masters, ", "), "")
	}
}

func (v *Validator) depthLimit() int {
	if v.PlaylistDepth <= 0 {
		return 1
	}
	return v.PlaylistDepth
}

// resolve walks the references of one playlist, marking everything reached.
// depth counts playlist levels below the master. Cycle detection tracks the
// active resolution path only: a playlist already on the path fails with
// KindPlaylistCycle, while one already resolved through another variant entry
// is simply skipped.
func (v *Validator) resolve(name string, depth, limit int, reached, active map[string]bool, byName map[string]File, src Source) error {
	data, err := src.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	for _, ref := range references(data) {
		if _, ok := byName[ref]; !ok {
			return errOf(KindDanglingReference, name, ref)
		}
		if isPlaylistName(ref) {
			if active[ref] {
				return errOf(KindPlaylistCycle, name, ref)
			}
			if reached[ref] {
				continue
			}
			if depth+1 > limit {
				return errOf(KindPlaylistCycle, name,
					fmt.Sprintf("playlist nesting exceeds depth %d", limit))
			}
			reached[ref] = true
			active[ref] = true
			if err := v.resolve(ref, depth+1, limit, reached, active, byName, src); err != nil {
				return err
			}
			delete(active, ref)
			continue
		}
		reached[ref] = true
	}
	return nil
}

// references extracts the non-directive, non-blank lines of a playlist: every
// such line names another file in the bundle.
func references(data []byte) []string {
	var refs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	return refs
}

// classify decodes playlist content to distinguish master from media
// playlists. Undecodable content counts as media so the exactly-one-master
// rule is not satisfied by garbage.
func classify(data []byte) m3u8.ListType {
	_, listType, err := m3u8.Decode(*bytes.NewBuffer(data), false)
	if err != nil {
		return m3u8.MEDIA
	}
	return listType
}

func isPlaylistName(name string) bool {
	return strings.HasSuffix(name, ".m3u8") || strings.HasSuffix(name, ".m3u")
}
