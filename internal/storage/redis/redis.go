// Package redis keeps users' projects and runs in Redis.
//
// Layout, for a key prefix P:
//
//	P:user:<user>:projects              sorted set of project names, scored by creation sequence
//	P:user:<user>:seq                   counter feeding those scores
//	P:user:<user>:project:<name>:runs   hash of run name -> msgpack-encoded raw run document
//
// with <user> and <name> query-escaped.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/chrissnell/energymonitor/internal/energy"
	"github.com/chrissnell/energymonitor/internal/storage"
	"github.com/chrissnell/energymonitor/pkg/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Store is a storage.RunStore backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
	logger *zap.SugaredLogger
}

var _ storage.RunStore = (*Store)(nil)

// New connects to the Redis server described by c and verifies it answers.
func New(ctx context.Context, c config.RedisData, logger *zap.SugaredLogger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	logger.Infof("connecting to Redis at %s...", c.Addr)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to reach Redis at %s: %w", c.Addr, err)
	}

	return NewWithClient(client, c.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, prefix string, logger *zap.SugaredLogger) *Store {
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

// Names are query-escaped so a ':' inside one cannot reach into another
// user's or project's keys.
func (s *Store) projectsKey(user string) string {
	return fmt.Sprintf("%s:user:%s:projects", s.prefix, url.QueryEscape(user))
}

func (s *Store) seqKey(user string) string {
	return fmt.Sprintf("%s:user:%s:seq", s.prefix, url.QueryEscape(user))
}

func (s *Store) runsKey(user, project string) string {
	return fmt.Sprintf("%s:user:%s:project:%s:runs", s.prefix, url.QueryEscape(user), url.QueryEscape(project))
}

// ListProjects returns the user's project names in creation order.
func (s *Store) ListProjects(ctx context.Context, user string) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.projectsKey(user), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error listing projects for %q: %w", user, err)
	}
	if len(names) == 0 {
		return nil, storage.NotFoundf("user %q has no projects", user)
	}
	return names, nil
}

// GetRuns returns the runs of one project, sorted by run name.
func (s *Store) GetRuns(ctx context.Context, user, project string) ([]energy.Run, error) {
	exists, err := s.projectExists(ctx, user, project)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.NotFoundf("project %q for user %q", project, user)
	}
	return s.readRuns(ctx, user, project)
}

// GetAllProjects returns every project of the user together with its runs.
func (s *Store) GetAllProjects(ctx context.Context, user string) ([]energy.ProjectRuns, error) {
	names, err := s.ListProjects(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]energy.ProjectRuns, 0, len(names))
	for _, name := range names {
		runs, err := s.readRuns(ctx, user, name)
		if err != nil {
			return nil, err
		}
		out = append(out, energy.ProjectRuns{Project: name, Runs: runs})
	}
	return out, nil
}

// AddProject creates an empty project, reporting false if it already existed.
func (s *Store) AddProject(ctx context.Context, user, project string) (bool, error) {
	exists, err := s.projectExists(ctx, user, project)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	seq, err := s.client.Incr(ctx, s.seqKey(user)).Result()
	if err != nil {
		return false, fmt.Errorf("error allocating project sequence for %q: %w", user, err)
	}

	added, err := s.client.ZAddNX(ctx, s.projectsKey(user), goredis.Z{Score: float64(seq), Member: project}).Result()
	if err != nil {
		return false, fmt.Errorf("error adding project %q for %q: %w", project, user, err)
	}
	return added == 1, nil
}

// SaveRun stores a raw run document, creating the project if needed.
func (s *Store) SaveRun(ctx context.Context, user, project, runName string, fields map[string]any) (string, error) {
	if _, err := s.AddProject(ctx, user, project); err != nil {
		return "", err
	}

	name := storage.RunName(runName)
	encoded, err := msgpack.Marshal(energy.NormalizeFields(fields))
	if err != nil {
		return "", fmt.Errorf("error encoding run %q: %w", name, err)
	}

	if err := s.client.HSet(ctx, s.runsKey(user, project), name, encoded).Err(); err != nil {
		return "", fmt.Errorf("error storing run %q: %w", name, err)
	}

	s.logger.Debugf("stored run %q in project %q for %q", name, project, user)
	return name, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) projectExists(ctx context.Context, user, project string) (bool, error) {
	err := s.client.ZScore(ctx, s.projectsKey(user), project).Err()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error looking up project %q for %q: %w", project, user, err)
	}
	return true, nil
}

func (s *Store) readRuns(ctx context.Context, user, project string) ([]energy.Run, error) {
	raw, err := s.client.HGetAll(ctx, s.runsKey(user, project)).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading runs of project %q: %w", project, err)
	}

	runs := make([]energy.Run, 0, len(raw))
	for name, blob := range raw {
		var fields map[string]any
		if err := msgpack.Unmarshal([]byte(blob), &fields); err != nil {
			// Keep the run so the bad data shows up as NaN downstream.
			s.logger.Warnf("undecodable run %q in project %q: %v", name, project, err)
			fields = nil
		}
		runs = append(runs, energy.RunFromFields(name, fields))
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs, nil
}
