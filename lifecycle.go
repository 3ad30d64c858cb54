package steppercache

import (
	"context"
	"strings"
)

func partitionName(prefix, name, version string) string {
	return prefix + name + "-" + version
}

// StaticPartition returns the name of the partition holding static assets.
func (s *StepperCache) StaticPartition() string {
	return s.staticPartition
}

// DynamicPartition returns the name of the partition holding all other responses.
func (s *StepperCache) DynamicPartition() string {
	return s.dynamicPartition
}

// Installed reports whether requests are served through the cache.
func (s *StepperCache) Installed() bool {
	return s.installed.Load()
}

// Install opens the partitions of the current version.
// Requests are only served through the cache once both partitions exist.
func (s *StepperCache) Install(ctx context.Context) error {
	for _, partition := range []string{s.staticPartition, s.dynamicPartition} {
		if err := s.store.Open(ctx, partition); err != nil {
			s.log.Error().Err(err).Str("partition", partition).Msg("Could not open partition")
			return err
		}
	}
	s.installed.Store(true)
	s.log.Info().
		Str("static", s.staticPartition).
		Str("dynamic", s.dynamicPartition).
		Msg("Cache installed")
	return nil
}

// Activate deletes the partitions left behind by other versions of the cache.
// Partitions not starting with the cache prefix belong to someone else and are kept.
// It returns the names of the deleted partitions.
func (s *StepperCache) Activate(ctx context.Context) ([]string, error) {
	partitions, err := s.store.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0)
	for _, partition := range partitions {
		if !s.superseded(partition) {
			continue
		}
		ok, err := s.store.Delete(ctx, partition)
		if err != nil {
			s.log.Error().Err(err).Str("partition", partition).Msg("Could not delete old partition")
			return deleted, err
		}
		if ok {
			s.log.Info().Str("partition", partition).Msg("Deleted old partition")
			deleted = append(deleted, partition)
		}
	}
	return deleted, nil
}

func (s *StepperCache) superseded(partition string) bool {
	return strings.HasPrefix(partition, s.prefix) && !strings.HasSuffix(partition, "-"+s.version)
}
