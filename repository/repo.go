package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garystafford/product-video-generator-app/constant"
	"github.com/garystafford/product-video-generator-app/entities"
	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

// JobSpec carries the submission fields a new job record is created from.
type JobSpec struct {
	ProductName  string
	Prompt       string
	TargetBucket string
	Settings     entities.VideoSettings
}

type Repository interface {
	CreateJob(spec JobSpec) (entities.Job, error)
	GetJob(id string) (entities.Job, error)
	// UpdateJob applies fn to the record under a per-record lock. Terminal
	// records are returned unchanged; status and progress never regress.
	UpdateJob(id string, fn func(*entities.Job)) (entities.Job, error)
	ListJobs() []entities.Job

	UpsertVideo(video entities.Video) error
	GetVideo(productNameOrID string) (entities.Video, error)
	ListVideos() []entities.Video
	DeleteVideo(id string) error

	PutKeyframes(kf entities.Keyframe) error
	GetKeyframes(productName string) (entities.Keyframe, error)
	ListKeyframes() []entities.Keyframe
}

// database is the on-disk shape, one JSON document for all record types.
type database struct {
	Jobs        map[string]entities.Job      `json:"jobs"`
	Videos      map[string]entities.Video    `json:"videos"`
	Keyframes   map[string]entities.Keyframe `json:"keyframes"`
	LastUpdated time.Time                    `json:"last_updated"`
}

type fileRepo struct {
	path string

	mu sync.RWMutex
	db database

	// recordMu serializes updates per job id so concurrent updates to the
	// same job cannot lose writes while unrelated jobs proceed in parallel.
	recordMuMu sync.Mutex
	recordMu   map[string]*sync.Mutex

	saveMu sync.Mutex
}

// NewRepo opens (or creates) the serialized record file at path.
func NewRepo(path string) (Repository, error) {
	r := &fileRepo{
		path: path,
		db: database{
			Jobs:      make(map[string]entities.Job),
			Videos:    make(map[string]entities.Video),
			Keyframes: make(map[string]entities.Keyframe),
		},
		recordMu: make(map[string]*sync.Mutex),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, apperr.Wrap(err, apperr.CodeStorage, "failed to read database file")
	}
	if err := json.Unmarshal(data, &r.db); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeStorage, "failed to parse database file")
	}
	if r.db.Jobs == nil {
		r.db.Jobs = make(map[string]entities.Job)
	}
	if r.db.Videos == nil {
		r.db.Videos = make(map[string]entities.Video)
	}
	if r.db.Keyframes == nil {
		r.db.Keyframes = make(map[string]entities.Keyframe)
	}

	return r, nil
}

func (r *fileRepo) CreateJob(spec JobSpec) (entities.Job, error) {
	now := time.Now()
	job := entities.Job{
		ID:           uuid.NewString(),
		ProductName:  spec.ProductName,
		Prompt:       spec.Prompt,
		TargetBucket: spec.TargetBucket,
		Settings:     spec.Settings,
		Status:       constant.JobStatusPending,
		Progress:     0,
		Message:      "Job created",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.db.Jobs[job.ID] = job
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return entities.Job{}, err
	}
	return job, nil
}

func (r *fileRepo) GetJob(id string) (entities.Job, error) {
	r.mu.RLock()
	job, ok := r.db.Jobs[id]
	r.mu.RUnlock()
	if !ok {
		return entities.Job{}, apperr.Newf(apperr.CodeNotFound, "job %s not found", id)
	}
	return job, nil
}

func (r *fileRepo) UpdateJob(id string, fn func(*entities.Job)) (entities.Job, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	old, ok := r.db.Jobs[id]
	r.mu.RUnlock()
	if !ok {
		return entities.Job{}, apperr.Newf(apperr.CodeNotFound, "job %s not found", id)
	}

	if old.Status.IsTerminal() {
		return old, nil
	}

	job := old
	fn(&job)

	// Forward-only status, monotonic progress, immutable identity.
	job.ID = old.ID
	job.CreatedAt = old.CreatedAt
	if job.Status.Rank() < old.Status.Rank() {
		job.Status = old.Status
	}
	if job.Progress < old.Progress {
		job.Progress = old.Progress
	}
	job.UpdatedAt = time.Now()

	r.mu.Lock()
	r.db.Jobs[id] = job
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return entities.Job{}, err
	}
	return job, nil
}

func (r *fileRepo) ListJobs() []entities.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]entities.Job, 0, len(r.db.Jobs))
	for _, job := range r.db.Jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

func (r *fileRepo) UpsertVideo(video entities.Video) error {
	r.mu.Lock()
	prior, had := r.db.Videos[video.ProductName]
	r.db.Videos[video.ProductName] = video
	r.mu.Unlock()

	// Last-write-wins per product: a superseded entry's backing files are
	// removed so nothing unreachable lingers on disk.
	if had && prior.ID != video.ID {
		removeVideoFiles(prior)
	}

	return r.save()
}

func (r *fileRepo) GetVideo(productNameOrID string) (entities.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if video, ok := r.db.Videos[productNameOrID]; ok {
		return video, nil
	}
	for _, video := range r.db.Videos {
		if video.ID == productNameOrID {
			return video, nil
		}
	}
	return entities.Video{}, apperr.Newf(apperr.CodeNotFound, "video %s not found", productNameOrID)
}

func (r *fileRepo) ListVideos() []entities.Video {
	r.mu.RLock()
	defer r.mu.RUnlock()

	videos := make([]entities.Video, 0, len(r.db.Videos))
	for _, video := range r.db.Videos {
		videos = append(videos, video)
	}
	return videos
}

func (r *fileRepo) DeleteVideo(id string) error {
	r.mu.Lock()
	var found *entities.Video
	for key, video := range r.db.Videos {
		if video.ID == id || key == id {
			v := video
			found = &v
			delete(r.db.Videos, key)
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return nil
	}
	removeVideoFiles(*found)
	return r.save()
}

func (r *fileRepo) PutKeyframes(kf entities.Keyframe) error {
	r.mu.Lock()
	r.db.Keyframes[kf.ProductName] = kf
	r.mu.Unlock()
	return r.save()
}

func (r *fileRepo) GetKeyframes(productName string) (entities.Keyframe, error) {
	r.mu.RLock()
	kf, ok := r.db.Keyframes[productName]
	r.mu.RUnlock()
	if !ok {
		return entities.Keyframe{}, apperr.Newf(apperr.CodeNotFound, "no keyframes found for product: %s", productName)
	}
	return kf, nil
}

func (r *fileRepo) ListKeyframes() []entities.Keyframe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keyframes := make([]entities.Keyframe, 0, len(r.db.Keyframes))
	for _, kf := range r.db.Keyframes {
		keyframes = append(keyframes, kf)
	}
	return keyframes
}

func (r *fileRepo) lockFor(id string) *sync.Mutex {
	r.recordMuMu.Lock()
	defer r.recordMuMu.Unlock()
	lock, ok := r.recordMu[id]
	if !ok {
		lock = &sync.Mutex{}
		r.recordMu[id] = lock
	}
	return lock
}

// save writes the whole database through a temp file and atomic rename so a
// crash mid-write never corrupts the record file.
func (r *fileRepo) save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	r.db.LastUpdated = time.Now()
	data, err := json.MarshalIndent(r.db, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return apperr.Wrap(err, apperr.CodeStorage, "failed to serialize database")
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), os.ModePerm); err != nil {
		return apperr.Wrap(err, apperr.CodeStorage, "failed to create data directory")
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperr.Wrap(err, apperr.CodeStorage, "failed to write database file")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return apperr.Wrap(err, apperr.CodeStorage, "failed to replace database file")
	}
	return nil
}

func removeVideoFiles(video entities.Video) {
	for _, path := range []string{video.OriginalPath, video.FinalPath} {
		if path == "" {
			continue
		}
		os.Remove(path)
	}
}
