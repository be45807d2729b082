package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-skinning/engine/assets/loaders"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
)

const minimalScene = `
[[nodes]]
name = "root"
`

func TestAssetManagerIndexesAndLoadsScenes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.scene.toml")
	if err := os.WriteFile(path, []byte(minimalScene), 0o644); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	am, err := NewAssetManager(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer am.Shutdown()
	if err := am.Initialize(dir); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	info, ok := am.Asset(path)
	if !ok || info.Type != loaders.AssetTypeScene {
		t.Errorf("expected the scene to be indexed, got %+v", info)
	}
	if _, ok := am.Asset(filepath.Join(dir, "notes.txt")); ok {
		t.Errorf("expected non asset files to be ignored")
	}

	asset, err := am.LoadAsset(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if sc, ok := asset.Data.(*scene.Scene); !ok || sc.NodeCount() != 1 {
		t.Errorf("expected a one node scene, got %T", asset.Data)
	}
	if err := am.UnloadAsset(asset); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	if asset.Data != nil || asset.DataSize != 0 {
		t.Errorf("expected the scene to be dropped on unload")
	}

	if _, err := am.LoadAsset(filepath.Join(dir, "notes.txt")); err == nil {
		t.Errorf("expected an error for a file without loader")
	}
}

func TestAssetManagerReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.scene.toml")
	if err := os.WriteFile(path, []byte(minimalScene), 0o644); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	am, err := NewAssetManager(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := am.Initialize(dir); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// a burst of writes settles into a single report
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(minimalScene+"\n"), 0o644); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}

	select {
	case changed := <-am.Changes():
		if changed != filepath.Clean(path) {
			t.Errorf("expected a change of %s, got %s", path, changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported")
	}

	if err := am.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for range am.Changes() {
		// drain anything reported after the first change
	}
	if err := am.Shutdown(); err != nil {
		t.Errorf("second shutdown failed: %s", err)
	}
}

func TestAssetManagerShutdownWithoutInitialize(t *testing.T) {
	am, err := NewAssetManager(time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := am.Shutdown(); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	if _, ok := <-am.Changes(); ok {
		t.Errorf("expected the changes channel to be closed")
	}
}
