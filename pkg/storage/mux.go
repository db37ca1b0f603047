package storage

import (
	"context"
	"fmt"
)

type UnknownContainerError struct {
	Container string
}

func (uce *UnknownContainerError) Error() string {
	return fmt.Sprintf("no storage configured for container %q", uce.Container)
}

// Mux dispatches each container to the storage it was added with, so that
// a single writer and drainer can serve routes on different storages.
type Mux struct {
	byContainer map[string]Storage
	storages    []Storage
}

func NewMux() *Mux {
	return &Mux{byContainer: make(map[string]Storage)}
}

// Add binds container to s. Binding the same container to two different
// storages is an error.
func (m *Mux) Add(container string, s Storage) error {
	if existing, ok := m.byContainer[container]; ok {
		if existing != s {
			return fmt.Errorf("container %q is already bound to another storage", container)
		}
		return nil
	}
	m.byContainer[container] = s

	for _, known := range m.storages {
		if known == s {
			return nil
		}
	}
	m.storages = append(m.storages, s)
	return nil
}

// Storages returns each distinct storage once.
func (m *Mux) Storages() []Storage {
	return append([]Storage(nil), m.storages...)
}

func (m *Mux) lookup(container string) (Storage, error) {
	s, ok := m.byContainer[container]
	if !ok {
		return nil, &UnknownContainerError{Container: container}
	}
	return s, nil
}

func (m *Mux) Put(ctx context.Context, container, key string, obj *Object) error {
	s, err := m.lookup(container)
	if err != nil {
		return err
	}
	return s.Put(ctx, container, key, obj)
}

func (m *Mux) Delete(ctx context.Context, container, key string) error {
	s, err := m.lookup(container)
	if err != nil {
		return err
	}
	return s.Delete(ctx, container, key)
}

func (m *Mux) HealthCheck() error {
	for _, s := range m.storages {
		if err := s.HealthCheck(); err != nil {
			return err
		}
	}
	return nil
}
