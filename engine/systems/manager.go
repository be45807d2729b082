package systems

type SystemManagerConfig struct {
	/** @brief Workers deforming meshes in parallel. 1 deforms on the calling goroutine. */
	Workers      int
	MaxMeshCount uint32
	MaxBoneCount uint32
}

type SystemManager struct {
	SkinSystem      *SkinSystem
	DeformerSystem  *DeformerSystem
	MeshCacheSystem *MeshCacheSystem
	FrameSystem     *FrameSystem
	jobSystem       *JobSystem
}

func NewSystemManager(config *SystemManagerConfig) (*SystemManager, error) {
	var js *JobSystem
	if config.Workers > 1 {
		var err error
		js, err = NewJobSystem(config.Workers, config.Workers*2)
		if err != nil {
			return nil, err
		}
	}

	ss, err := NewSkinSystem(&SkinSystemConfig{
		MaxBoneCount: config.MaxBoneCount,
	})
	if err != nil {
		return nil, err
	}
	ds := NewDeformerSystem()
	mcs, err := NewMeshCacheSystem(&MeshCacheSystemConfig{
		MaxMeshCount: config.MaxMeshCount,
	}, ds)
	if err != nil {
		return nil, err
	}
	fs, err := NewFrameSystem(&FrameSystemConfig{
		Workers: config.Workers,
	}, mcs, js)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		SkinSystem:      ss,
		DeformerSystem:  ds,
		MeshCacheSystem: mcs,
		FrameSystem:     fs,
		jobSystem:       js,
	}, nil
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.FrameSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MeshCacheSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.DeformerSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.SkinSystem.Shutdown(); err != nil {
		return err
	}
	if sm.jobSystem != nil {
		if err := sm.jobSystem.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}
