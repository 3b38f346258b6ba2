package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

const (
	entrySuffix   = ".entry"
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
	tempPattern   = ".entry-*"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	s := &fileStore{basePath: abs, now: time.Now}
	s.sweep()
	return s, nil
}

// fileStore 不做 key 级加锁：同 key 并发写入以最后一次 rename 为准。
type fileStore struct {
	basePath string
	now      func() time.Time
}

func (s *fileStore) Open(ctx context.Context, name string) (NamedCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := s.cacheDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &fileCache{store: s, name: name, root: root}, nil
}

func (s *fileStore) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	root, err := s.cacheDir(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *fileStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	root, err := s.cacheDir(name)
	if err != nil {
		return false, err
	}
	trash := filepath.Join(s.basePath, trashPrefix+uuid.NewString())
	if err := os.Rename(root, trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return true, fmt.Errorf("purge cache %s: %w", name, err)
	}
	return true, nil
}

func (s *fileStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		names = append(names, item.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) Replace(ctx context.Context, name string, entries []Entry) (NamedCache, error) {
	root, err := s.cacheDir(name)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(s.basePath, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.Response == nil {
			return nil, fmt.Errorf("nil response for %s", entry.Key)
		}
		if _, err := s.writeEntry(staging, entry.Key, entry.Response); err != nil {
			return nil, err
		}
	}

	var trash string
	if _, err := os.Stat(root); err == nil {
		trash = filepath.Join(s.basePath, trashPrefix+uuid.NewString())
		if err := os.Rename(root, trash); err != nil {
			return nil, fmt.Errorf("retire cache %s: %w", name, err)
		}
	}
	if err := os.Rename(staging, root); err != nil {
		if trash != "" {
			_ = os.Rename(trash, root)
		}
		return nil, fmt.Errorf("commit cache %s: %w", name, err)
	}
	committed = true
	if trash != "" {
		_ = os.RemoveAll(trash)
	}
	return &fileCache{store: s, name: name, root: root}, nil
}

// writeEntry 把条目写入 root 下的分片目录；root 必须已存在，
// 这样缓存被整体删除后迟到的写入不会把它重新建出来。
func (s *fileStore) writeEntry(root string, key Key, resp *Response) (digest.Digest, error) {
	if !key.Cacheable() {
		return "", fmt.Errorf("%w: %s", ErrNotCacheable, key)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: network error responses are never stored", ErrNotCacheable)
	}

	data, sum, err := encodeEntry(key, resp, s.now())
	if err != nil {
		return "", err
	}

	filePath := entryPath(root, key)
	shard := filepath.Dir(filePath)
	if err := os.Mkdir(shard, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrCacheDeleted
		}
		return "", err
	}

	tempFile, err := os.CreateTemp(shard, tempPattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrCacheDeleted
		}
		return "", err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return "", err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrCacheDeleted
		}
		return "", err
	}
	return sum, nil
}

// sweep 清理上次进程遗留的 staging/trash 目录。
func (s *fileStore) sweep() {
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return
	}
	for _, item := range items {
		name := item.Name()
		if strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix) {
			_ = os.RemoveAll(filepath.Join(s.basePath, name))
		}
	}
}

func (s *fileStore) cacheDir(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || name != filepath.Clean(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.basePath, name), nil
}

// entryPath 以 key 的 sha256 作为文件名，前两位十六进制做分片。
func entryPath(root string, key Key) string {
	hexSum := digest.FromString(key.String()).Encoded()
	return filepath.Join(root, hexSum[:2], hexSum+entrySuffix)
}

// fileCache 是单个 NamedCache 在磁盘上的视图。
type fileCache struct {
	store *fileStore
	name  string
	root  string
}

func (c *fileCache) Name() string {
	return c.name
}

func (c *fileCache) Match(ctx context.Context, key Key) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !key.Cacheable() {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(entryPath(c.root, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_, resp, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *fileCache) Put(ctx context.Context, key Key, resp *Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if resp == nil {
		return errors.New("nil response")
	}
	_, err := c.store.writeEntry(c.root, key, resp)
	return err
}

func (c *fileCache) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(entryPath(c.root, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *fileCache) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), entrySuffix) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		key, _, err := decodeEntry(data)
		if err != nil {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].URL < keys[j].URL })
	return keys, nil
}
