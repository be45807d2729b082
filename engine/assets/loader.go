package assets

import "github.com/spaghettifunk/anima-skinning/engine/assets/loaders"

type Loader interface {
	Load(path string) (*loaders.Asset, error)
	Unload(*loaders.Asset) error
}
