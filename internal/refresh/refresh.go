package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cloudshelf/cloudshelf/internal/metadata"
	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/scanner"
)

// MetaKey is the settings key the serialized folder index lives under.
// All scanned roots share this one document.
const MetaKey = "meta_info"

// resolveDelay paces catalog lookups. It is charged after every
// resolution attempt, success or failure, but not after skipped folders.
const resolveDelay = 300 * time.Millisecond

// Lister walks a remote directory tree.
type Lister interface {
	ListAllDirs(ctx context.Context, path string) ([]string, error)
}

// Searcher resolves folder titles against the metadata catalog.
type Searcher interface {
	Search(ctx context.Context, query string, year *int) (*metadata.Match, error)
	SeasonDetails(ctx context.Context, showID, seasonNumber int) (*metadata.Season, error)
}

// Store persists the serialized index and refresh bookkeeping values.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	SetMany(values map[string]string) error
}

// Tracker records the externally observable progress of one scan.
type Tracker interface {
	UpdateProgress(id uuid.UUID, current, total int, currentItem string) error
	Complete(id uuid.UUID, result *models.ScanResult) error
	Fail(id uuid.UUID, message string) error
}

// ProgressFunc is invoked after every processed folder, resolved or
// skipped, with a 1-based index.
type ProgressFunc func(current, total int, currentItem string)

// Refresher runs one library scan: list the remote root, resolve folders
// that are not in the index yet, write the updated index back. Folder
// resolutions are strictly sequential; a Refresher is built per scan and
// must not be shared.
type Refresher struct {
	root     string
	lister   Lister
	searcher Searcher
	store    Store
	tracker  Tracker
	cache    *Cache

	// OnProgress, when set, is told about every processed folder in
	// addition to the tracker updates.
	OnProgress ProgressFunc

	delay time.Duration
}

func NewRefresher(root string, lister Lister, searcher Searcher, store Store, tracker Tracker, cache *Cache) *Refresher {
	return &Refresher{
		root:     root,
		lister:   lister,
		searcher: searcher,
		store:    store,
		tracker:  tracker,
		cache:    cache,
		delay:    resolveDelay,
	}
}

// Run executes the scan and reports its outcome through the tracker.
// resetIndex discards the stored index so every folder is re-resolved;
// otherwise folders whose names already have entries are skipped without
// any catalog calls. The returned error restates what was already
// recorded on the task, for the background caller's log.
func (r *Refresher) Run(ctx context.Context, taskID uuid.UUID, resetIndex bool) (*models.ScanResult, error) {
	log.Printf("Refresh: scan started for root %s (reset=%v)", r.root, resetIndex)

	dirs, err := r.lister.ListAllDirs(ctx, r.root)
	if err != nil {
		r.failTask(taskID, fmt.Sprintf("directory listing failed: %v", err))
		return nil, fmt.Errorf("directory listing failed: %w", err)
	}

	meta := r.loadIndex(resetIndex)
	keyByName := make(map[string]string, len(meta.Folders))
	keys := make(map[string]bool, len(meta.Folders))
	for key, info := range meta.Folders {
		keyByName[info.FolderName] = key
		keys[key] = true
	}

	total := len(dirs)
	result := &models.ScanResult{Total: total}

	for i, name := range dirs {
		current := i + 1

		if !resetIndex {
			if _, ok := keyByName[name]; ok {
				result.Existing++
				r.reportProgress(taskID, current, total, name)
				continue
			}
		}

		info := r.resolve(ctx, name)
		if info.Failed {
			result.Errors++
		} else {
			result.New++
		}

		key, ok := keyByName[name]
		if !ok {
			key = GenerateFolderKey(name, keys)
			keys[key] = true
			keyByName[name] = key
		}
		meta.Folders[key] = info

		r.reportProgress(taskID, current, total, name)
		time.Sleep(r.delay)
	}

	if err := r.persist(meta, result); err != nil {
		r.failTask(taskID, err.Error())
		return nil, err
	}

	if err := r.tracker.Complete(taskID, result); err != nil {
		return nil, fmt.Errorf("failed to complete scan task: %w", err)
	}

	log.Printf("Refresh: scan finished for root %s: %d total, %d new, %d existing, %d errors",
		r.root, result.Total, result.New, result.Existing, result.Errors)
	return result, nil
}

// loadIndex returns the stored index, or a fresh one when a reset was
// requested, nothing is stored yet, or the stored value cannot be read.
// A bad stored index never aborts a scan.
func (r *Refresher) loadIndex(resetIndex bool) *models.MetaInfo {
	if resetIndex {
		return models.NewMetaInfo()
	}

	raw, err := r.store.Get(MetaKey)
	if err != nil {
		log.Printf("Refresh: could not read stored index, starting empty: %v", err)
		return models.NewMetaInfo()
	}
	if raw == "" {
		return models.NewMetaInfo()
	}

	meta := &models.MetaInfo{}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		log.Printf("Refresh: stored index is corrupt, starting empty: %v", err)
		return models.NewMetaInfo()
	}
	if meta.Folders == nil {
		meta.Folders = make(map[string]*models.FolderInfo)
	}
	return meta
}

// resolve turns one folder name into an index entry. Every failure mode
// is contained here: whatever goes wrong, the folder gets a placeholder
// entry and the scan moves on.
func (r *Refresher) resolve(ctx context.Context, folderName string) *models.FolderInfo {
	parsed := scanner.ParseFolderName(folderName)

	match, err := r.searcher.Search(ctx, parsed.Title, parsed.Year)
	if err != nil {
		log.Printf("Refresh: search failed for %q: %v", folderName, err)
		return failedEntry(folderName)
	}
	if match == nil {
		log.Printf("Refresh: no match for %q", folderName)
		return failedEntry(folderName)
	}

	info := &models.FolderInfo{
		FolderName:  folderName,
		TMDBID:      match.ID,
		Title:       match.Title,
		Overview:    match.Overview,
		PosterPath:  match.PosterPath,
		ReleaseDate: match.ReleaseDate,
		VoteAverage: match.VoteAverage,
		MediaType:   match.MediaType,
		LastUpdated: time.Now().UnixMilli(),
	}

	if match.MediaType == models.MediaTypeTV && parsed.Season > 0 {
		// Recorded before the lookup so a failed lookup still keeps
		// the season number alongside the series-level data.
		info.SeasonNumber = parsed.Season

		season, err := r.searcher.SeasonDetails(ctx, match.ID, parsed.Season)
		if err != nil {
			log.Printf("Refresh: season %d lookup failed for %q, keeping series data: %v",
				parsed.Season, folderName, err)
		} else if season != nil {
			applySeason(info, match.Title, season)
		}
	}

	return info
}

// applySeason overrides the series-level fields with season-specific
// values. The season name is appended to the title only past season 1,
// so single-season shows keep their plain series title.
func applySeason(info *models.FolderInfo, baseTitle string, season *metadata.Season) {
	info.SeasonName = season.Name
	if info.SeasonNumber > 1 && season.Name != "" {
		info.Title = baseTitle + " " + season.Name
	}
	if season.PosterPath != "" {
		info.PosterPath = season.PosterPath
	}
	if season.Overview != "" {
		info.Overview = season.Overview
	}
	if season.AirDate != "" {
		info.ReleaseDate = season.AirDate
	}
}

func failedEntry(folderName string) *models.FolderInfo {
	return &models.FolderInfo{
		FolderName:  folderName,
		TMDBID:      0,
		Title:       folderName,
		MediaType:   models.MediaTypeMovie,
		LastUpdated: time.Now().UnixMilli(),
		Failed:      true,
	}
}

// persist writes the index and refresh bookkeeping, then repopulates the
// cache for the scanned root. Called only on the success path; a failure
// anywhere in here fails the whole scan.
func (r *Refresher) persist(meta *models.MetaInfo, result *models.ScanResult) error {
	meta.LastRefresh = time.Now().UnixMilli()

	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}
	if err := r.store.Set(MetaKey, string(blob)); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	if err := r.store.SetMany(map[string]string{
		"drive_last_refresh":   strconv.FormatInt(meta.LastRefresh, 10),
		"drive_resource_count": strconv.Itoa(result.Total),
	}); err != nil {
		return fmt.Errorf("failed to update refresh settings: %w", err)
	}

	r.cache.Invalidate(r.root)
	r.cache.Set(r.root, meta)
	return nil
}

func (r *Refresher) reportProgress(taskID uuid.UUID, current, total int, item string) {
	if err := r.tracker.UpdateProgress(taskID, current, total, item); err != nil {
		log.Printf("Refresh: failed to update task progress: %v", err)
	}
	if r.OnProgress != nil {
		r.OnProgress(current, total, item)
	}
}

func (r *Refresher) failTask(taskID uuid.UUID, message string) {
	if err := r.tracker.Fail(taskID, message); err != nil {
		log.Printf("Refresh: failed to mark task failed: %v", err)
	}
}
