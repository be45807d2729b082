package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-skinning/engine/core"
)

/**
 * @brief A unit of work for the job system. OnStart runs on a worker with
 * InputParams. Exactly one of OnComplete or OnFailure follows, then
 * OnCompletionCallback if set.
 */
type JobTask struct {
	InputParams          interface{}
	OnStart              func(params interface{}) error
	OnComplete           func(params interface{})
	OnFailure            func(params interface{}, err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan JobTask, channelSize)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.OnStart(job.InputParams)
				if err != nil {
					core.LogError(err.Error())
					if job.OnFailure != nil {
						job.OnFailure(job.InputParams, err)
					}
				} else if job.OnComplete != nil {
					job.OnComplete(job.InputParams)
				}

				// Call the completion callback if set
				if job.OnCompletionCallback != nil {
					job.OnCompletionCallback()
				}
			}
		}()
	}
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Shuts the job system down, waiting for queued jobs to finish.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() {
		close(js.jobQueue)
	})
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) {
	js.jobQueue <- jt
}
