package loaders

/** @brief The kinds of asset the loaders know about. */
type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	/** @brief A TOML rig description, see SceneLoader. */
	AssetTypeScene
)

func (at AssetType) String() string {
	switch at {
	case AssetTypeScene:
		return "scene"
	}
	return "none"
}

type Asset struct {
	/** @brief The name of the asset. */
	Name string
	/** @brief The full file path of the asset. */
	FullPath string
	Type     AssetType
	/** @brief The size of the source file in bytes. */
	DataSize uint64
	/** @brief The loaded data, *scene.Scene for scenes. */
	Data interface{}
}
