package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-skinning/engine/assets/loaders"
	"github.com/spaghettifunk/anima-skinning/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       loaders.AssetType
	LastLoaded time.Time
}

/**
 * @brief Indexes the assets under a directory, loads them with the loader
 * registered for their type and reports files changed on disk. Changes are
 * debounced so an editor writing a file in several steps is reported once.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[loaders.AssetType]Loader

	mutex sync.RWMutex

	debounce time.Duration
	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
	changes  chan string
}

func NewAssetManager(debounce time.Duration) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.AssetType]Loader),
		debounce: debounce,
		fsnotify: fsWatch,
		changes:  make(chan string, 16),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	// Register loaders
	am.registerLoader(loaders.AssetTypeScene, &loaders.SceneLoader{})
	return am, nil
}

// Initialize indexes assetsDir and starts watching it and its sub-directories.
func (am *AssetManager) Initialize(assetsDir string) error {
	if err := am.addRecursive(assetsDir); err != nil {
		return err
	}
	am.mutex.Lock()
	am.started = true
	am.mutex.Unlock()
	go am.start()
	return nil
}

// Shutdown stops watching. The Changes channel is closed afterwards.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	started := am.started
	am.mutex.Unlock()

	if !started {
		close(am.changes)
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

/**
 * @brief Paths of indexed assets that changed on disk. Closed on Shutdown.
 * Changes are dropped while the channel is full.
 */
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	am.mutex.RLock()
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads a file with the loader registered for its type and indexes it.
func (am *AssetManager) LoadAsset(path string) (*loaders.Asset, error) {
	assetType := determineAssetType(path)
	loader, loaderExists := am.loaders[assetType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset '%s' of type %s", path, assetType)
	}

	asset, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[filepath.Clean(path)] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	am.mutex.Unlock()
	return asset, nil
}

func (am *AssetManager) UnloadAsset(asset *loaders.Asset) error {
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// Asset returns the index entry of a watched or loaded asset.
func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	defer close(am.changes)
	defer am.fsnotify.Close()

	pending := make(map[string]struct{})
	// nil until a change is pending
	var flush <-chan time.Time

	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch '%s': %s", e.Name, err.Error())
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(e.Name) {
					pending[filepath.Clean(e.Name)] = struct{}{}
					flush = time.After(am.debounce)
				}
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-flush:
			flush = nil
			for p := range pending {
				select {
				case am.changes <- p:
					core.LogDebug("asset '%s' changed", p)
				default:
					core.LogWarn("dropping change of asset '%s', nobody is listening", p)
				}
				delete(pending, p)
			}

		case <-am.done:
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list,
// indexing the files found on the way.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				if err = am.fsnotify.Remove(walkPath); err != nil {
					return err
				}
			} else {
				if err = am.fsnotify.Add(walkPath); err != nil {
					return err
				}
			}
		} else {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// Handle the creation or modification of a file. Reports whether the file is
// an asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == loaders.AssetTypeNone {
		return false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[filepath.Clean(path)] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) loaders.AssetType {
	if strings.HasSuffix(path, ".scene.toml") {
		return loaders.AssetTypeScene
	}
	return loaders.AssetTypeNone
}
