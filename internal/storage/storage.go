package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/FUFSoB/cli-bot-discord/datastore"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
)

const (
	commandHistoryLimit int = 20

	guildKeyPrefix = "guild:"
	jobKeyPrefix   = "job:"
	// dmGuildID keys history of commands invoked outside a guild.
	dmGuildID = "dm"
)

type Storage struct {
	ds *datastore.DataStore
}

type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Datetime  time.Time `json:"datetime"`
}

type Record struct {
	CommandsHistoryList []CommandHistoryRecord `json:"cmd_history"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// NewWithDataStore wraps an already opened datastore.
func NewWithDataStore(ds *datastore.DataStore) *Storage {
	return &Storage{ds: ds}
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func guildKey(guildID string) string {
	if guildID == "" {
		guildID = dmGuildID
	}
	return guildKeyPrefix + guildID
}

// getOrCreateGuildRecord loads the record of a guild, or an empty one.
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Get(guildKey(guildID), &record); err != nil {
		return nil, fmt.Errorf("error loading guild record: %w", err)
	}
	if record.CommandsHistoryList == nil {
		record.CommandsHistoryList = []CommandHistoryRecord{}
	}
	if len(record.CommandsHistoryList) > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[len(record.CommandsHistoryList)-commandHistoryLimit:]
	}
	return &record, nil
}

// AppendCommandToHistory appends a command history record for a guild,
// keeping the most recent entries.
func (s *Storage) AppendCommandToHistory(guildID string, command CommandHistoryRecord) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.CommandsHistoryList = append(record.CommandsHistoryList, command)
	if n := len(record.CommandsHistoryList); n > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[n-commandHistoryLimit:]
	}
	return s.ds.Put(guildKey(guildID), record)
}

func (s *Storage) FetchCommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.CommandsHistoryList, nil
}

// SaveJob persists a pending scheduled job.
func (s *Storage) SaveJob(job scheduler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}
	return s.ds.Put(jobKeyPrefix+job.ID, job)
}

func (s *Storage) DeleteJob(id string) error {
	s.ds.Delete(jobKeyPrefix + id)
	return nil
}

// PendingJobs returns persisted jobs ordered by fire time.
func (s *Storage) PendingJobs() ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	for _, key := range s.ds.Keys() {
		if !strings.HasPrefix(key, jobKeyPrefix) {
			continue
		}
		var job scheduler.Job
		ok, err := s.ds.Get(key, &job)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", key, err)
		}
		if ok {
			jobs = append(jobs, job)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs, nil
}

var _ scheduler.Store = (*Storage)(nil)
