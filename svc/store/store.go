package store

import (
	"context"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"linepaste/metrics"
	"linepaste/pkg/domain"
	"linepaste/pkg/kms"
	"linepaste/svc/util"
)

const (
	pasteExt   = ".paste"
	lockShards = 64
)

// Store persists one authenticated-encrypted JSON document per paste
// at <dataDir>/<uid[0]>/<uid>.paste. All documents are sealed under a
// single process-wide key; rotating that key orphans the store.
type Store struct {
	dataDir string
	key     []byte
	locks   [lockShards]sync.Mutex
}

func New(dataDir string, key []byte) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data dir is required")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("store key must be %d bytes (got %d)", chacha20poly1305.KeySize, len(key))
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, errors.Wrap(domain.ErrIO, err.Error())
	}
	s := &Store{
		dataDir: dataDir,
		key:     make([]byte, len(key)),
	}
	copy(s.key, key)
	return s, nil
}

// Close wipes the in-memory copy of the store key.
func (s *Store) Close() {
	util.Wipe(s.key)
}

// Ping reports whether the data directory is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	if !info.IsDir() {
		return errors.Wrapf(domain.ErrIO, "%s is not a directory", s.dataDir)
	}
	return nil
}

func (s *Store) path(uid string) (string, error) {
	if !domain.ValidUID(uid) {
		return "", errors.Wrapf(domain.ErrValidation, "bad uid %q", uid)
	}
	return filepath.Join(s.dataDir, uid[:1], uid+pasteExt), nil
}

func (s *Store) Exists(ctx context.Context, uid string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	path, err := s.path(uid)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(domain.ErrIO, err.Error())
	}
	return true, nil
}

// Put seals the aggregate and atomically replaces the paste file. A
// failed encrypt-then-write never leaves a half-written file behind.
func (s *Store) Put(ctx context.Context, uid string, p *domain.Paste) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	path, err := s.path(uid)
	if err != nil {
		return err
	}
	doc, err := domain.EncodeDocument(p)
	if err != nil {
		return err
	}
	blob, err := kms.AEADSeal(doc, s.key)
	if err != nil {
		return errors.Wrap(domain.ErrEncryption, err.Error())
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	tmp, err := os.CreateTemp(dir, uid+".tmp-*")
	if err != nil {
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(domain.ErrIO, err.Error())
	}
	return nil
}

func (s *Store) Get(ctx context.Context, uid string) (*domain.Paste, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	path, err := s.path(uid)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrPasteNotFound
		}
		return nil, errors.Wrap(domain.ErrIO, err.Error())
	}
	doc, err := kms.AEADOpen(blob, s.key)
	if err != nil {
		metrics.DecryptFailures.Inc()
		return nil, errors.Wrapf(domain.ErrDecryption, "uid %s: %v", uid, err)
	}
	p, err := domain.DecodeDocument(doc)
	if err != nil {
		metrics.DecryptFailures.Inc()
		return nil, err
	}
	return p, nil
}

// Update is the only mutation path: read, mutate, write back. A
// per-UID lock is held across the whole cycle so two concurrent
// comment appends cannot clobber each other.
func (s *Store) Update(ctx context.Context, uid string, mutate func(*domain.Paste) error) (*domain.Paste, error) {
	mu := &s.locks[shard(uid)]
	mu.Lock()
	defer mu.Unlock()
	return s.readModifyWrite(ctx, uid, mutate)
}

// UpdateUnsafe performs the same read-modify-write with no locking.
// Concurrent callers on one UID can lose updates; it exists to keep
// that hazard demonstrable and must not be used by the service.
func (s *Store) UpdateUnsafe(ctx context.Context, uid string, mutate func(*domain.Paste) error) (*domain.Paste, error) {
	return s.readModifyWrite(ctx, uid, mutate)
}

func (s *Store) readModifyWrite(ctx context.Context, uid string, mutate func(*domain.Paste) error) (*domain.Paste, error) {
	p, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := mutate(p); err != nil {
		return nil, err
	}
	if p.UID != uid {
		return nil, errors.Wrap(domain.ErrValidation, "mutator changed paste uid")
	}
	if err := s.Put(ctx, uid, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Scan decrypts every stored paste and reports those whose content
// contains keyword case-insensitively. Files that fail decryption or
// decoding are logged and skipped; the scan itself keeps going.
func (s *Store) Scan(ctx context.Context, keyword string, fn func(domain.ScanMatch) error) error {
	needle := strings.ToLower(keyword)
	return filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrap(domain.ErrIO, err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), pasteExt) {
			return nil
		}
		uid := strings.TrimSuffix(d.Name(), pasteExt)
		blob, err := os.ReadFile(path)
		if err != nil {
			util.Warn().Err(err).Str("uid", uid).Msg("scan: unreadable paste file, skipping")
			return nil
		}
		doc, err := kms.AEADOpen(blob, s.key)
		if err != nil {
			metrics.DecryptFailures.Inc()
			util.Warn().Err(err).Str("uid", uid).Msg("scan: undecryptable paste file, skipping")
			return nil
		}
		p, err := domain.DecodeDocument(doc)
		if err != nil {
			util.Warn().Err(err).Str("uid", uid).Msg("scan: malformed paste document, skipping")
			return nil
		}
		if !strings.Contains(strings.ToLower(p.Content), needle) {
			return nil
		}
		return fn(domain.ScanMatch{UID: p.UID, Content: p.Content})
	})
}

func shard(uid string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(uid))
	return h.Sum32() % lockShards
}
