// Package mocks holds testify mocks of the db interfaces.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/eigerco/kvtree/pkg/db"
)

// MockKVStore implements db.KVStore for testing
type MockKVStore struct {
	mock.Mock
}

func NewMockKVStore() *MockKVStore {
	return &MockKVStore{}
}

func (m *MockKVStore) Get(key []byte) ([]byte, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKVStore) Put(key, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockKVStore) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockKVStore) DeleteRange(start, end []byte) error {
	args := m.Called(start, end)
	return args.Error(0)
}

func (m *MockKVStore) NewBatch() db.Batch {
	args := m.Called()
	return args.Get(0).(db.Batch)
}

func (m *MockKVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	args := m.Called(start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Iterator), args.Error(1)
}

func (m *MockKVStore) Compact() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockKVStore) Preload() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockKVStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockBatch implements db.Batch for testing
type MockBatch struct {
	mock.Mock
}

func NewMockBatch() *MockBatch {
	return &MockBatch{}
}

func (m *MockBatch) Put(key, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockBatch) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockBatch) DeleteRange(start, end []byte) error {
	args := m.Called(start, end)
	return args.Error(0)
}

func (m *MockBatch) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBatch) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockIterator implements db.Iterator for testing
type MockIterator struct {
	mock.Mock
}

func NewMockIterator() *MockIterator {
	return &MockIterator{}
}

func (m *MockIterator) First() bool {
	return m.Called().Bool(0)
}

func (m *MockIterator) Last() bool {
	return m.Called().Bool(0)
}

func (m *MockIterator) SeekGE(key []byte) bool {
	return m.Called(key).Bool(0)
}

func (m *MockIterator) SeekLT(key []byte) bool {
	return m.Called(key).Bool(0)
}

func (m *MockIterator) Next() bool {
	return m.Called().Bool(0)
}

func (m *MockIterator) Prev() bool {
	return m.Called().Bool(0)
}

func (m *MockIterator) Key() []byte {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]byte)
}

func (m *MockIterator) Value() ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockIterator) Valid() bool {
	return m.Called().Bool(0)
}

func (m *MockIterator) Close() error {
	args := m.Called()
	return args.Error(0)
}
