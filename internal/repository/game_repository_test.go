package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/echechess/internal/errors"
)

// GameRepositoryTestSuite 两种实现共用的契约测试
type GameRepositoryTestSuite struct {
	suite.Suite
	newRepo func(t *testing.T) GameRepository
	repo    GameRepository
	ctx     context.Context
}

func (s *GameRepositoryTestSuite) SetupTest() {
	s.repo = s.newRepo(s.T())
	s.ctx = context.Background()
}

func (s *GameRepositoryTestSuite) TestAddThenGet() {
	rec, err := s.repo.Add(s.ctx, "g1", []byte(`{"turn":"WHITE"}`))
	s.Require().NoError(err)
	s.Equal(int64(1), rec.Version)

	got, err := s.repo.Get(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal([]byte(`{"turn":"WHITE"}`), got.State)
	s.Equal(int64(1), got.Version)
}

// 覆盖写入时版本在原版本上加一
func (s *GameRepositoryTestSuite) TestAddOverwriteIncrementsVersion() {
	for i := 1; i <= 3; i++ {
		state := []byte(fmt.Sprintf(`{"n":%d}`, i))
		rec, err := s.repo.Add(s.ctx, "g1", state)
		s.Require().NoError(err)
		s.Equal(int64(i), rec.Version)

		got, err := s.repo.Get(s.ctx, "g1")
		s.Require().NoError(err)
		s.Equal(state, got.State)
		s.Equal(int64(i), got.Version)
	}
}

func (s *GameRepositoryTestSuite) TestEmptyIDIsInvalidAndDoesNotMutate() {
	_, err := s.repo.Add(s.ctx, "g1", []byte("x"))
	s.Require().NoError(err)
	before, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)

	_, err = s.repo.Add(s.ctx, "", []byte("y"))
	s.True(errors.Is(err, errors.ErrInvalidArgument))
	_, err = s.repo.Get(s.ctx, "")
	s.True(errors.Is(err, errors.ErrInvalidArgument))
	_, err = s.repo.Update(s.ctx, "", []byte("y"), 1)
	s.True(errors.Is(err, errors.ErrInvalidArgument))
	err = s.repo.Delete(s.ctx, "")
	s.True(errors.Is(err, errors.ErrInvalidArgument))

	after, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(before, after)
}

func (s *GameRepositoryTestSuite) TestAddWithoutState() {
	_, err := s.repo.Add(s.ctx, "g1", nil)
	s.True(errors.Is(err, errors.ErrInvalidArgument))

	_, err = s.repo.Get(s.ctx, "g1")
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *GameRepositoryTestSuite) TestGetMissingIsNotFound() {
	rec, err := s.repo.Get(s.ctx, "missing")
	s.Nil(rec)
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *GameRepositoryTestSuite) TestUpdateWithExpectedVersion() {
	_, err := s.repo.Add(s.ctx, "g1", []byte("v1"))
	s.Require().NoError(err)

	rec, err := s.repo.Update(s.ctx, "g1", []byte("v2"), 1)
	s.Require().NoError(err)
	s.Equal(int64(2), rec.Version)

	// 过期版本写入被拒绝，存储不变
	_, err = s.repo.Update(s.ctx, "g1", []byte("stale"), 1)
	s.True(errors.Is(err, errors.ErrVersionConflict))

	got, err := s.repo.Get(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal([]byte("v2"), got.State)
	s.Equal(int64(2), got.Version)
}

func (s *GameRepositoryTestSuite) TestUpdateMissingIsNotFound() {
	_, err := s.repo.Update(s.ctx, "missing", []byte("x"), 0)
	s.True(errors.Is(err, errors.ErrNotFound))
}

func (s *GameRepositoryTestSuite) TestDelete() {
	_, err := s.repo.Add(s.ctx, "g1", []byte("x"))
	s.Require().NoError(err)

	s.Require().NoError(s.repo.Delete(s.ctx, "g1"))
	_, err = s.repo.Get(s.ctx, "g1")
	s.True(errors.Is(err, errors.ErrNotFound))

	// 重复删除不报错
	s.NoError(s.repo.Delete(s.ctx, "g1"))
}

func (s *GameRepositoryTestSuite) TestGetAllSortedByID() {
	for _, id := range []string{"c", "a", "b"} {
		_, err := s.repo.Add(s.ctx, id, []byte(id))
		s.Require().NoError(err)
	}

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("a", all[0].ID)
	s.Equal("b", all[1].ID)
	s.Equal("c", all[2].ID)
}

// 返回的是副本
func (s *GameRepositoryTestSuite) TestGetReturnsCopy() {
	_, err := s.repo.Add(s.ctx, "g1", []byte("abc"))
	s.Require().NoError(err)

	got, err := s.repo.Get(s.ctx, "g1")
	s.Require().NoError(err)
	got.State[0] = 'z'

	again, err := s.repo.Get(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal([]byte("abc"), again.State)
}

// 同一对局上的并发条件写入只有一个成功
func (s *GameRepositoryTestSuite) TestConcurrentUpdateSingleWinner() {
	_, err := s.repo.Add(s.ctx, "g1", []byte("v1"))
	s.Require().NoError(err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.repo.Update(s.ctx, "g1", []byte(fmt.Sprintf("w%d", i)), 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, errors.ErrVersionConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(writers-1, conflicts)

	got, err := s.repo.Get(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal(int64(2), got.Version)
}

func TestMemoryGameRepository(t *testing.T) {
	suite.Run(t, &GameRepositoryTestSuite{
		newRepo: func(t *testing.T) GameRepository { return NewMemoryGameRepository() },
	})
}

func TestSQLGameRepository(t *testing.T) {
	suite.Run(t, &GameRepositoryTestSuite{
		newRepo: func(t *testing.T) GameRepository { return NewSQLGameRepository(TestDB(t)) },
	})
}

// 存储连接故障不能被当作对局不存在
func TestSQLGameRepository_UnavailableIsNotNotFound(t *testing.T) {
	db := TestDB(t)
	repo := NewSQLGameRepository(db)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.Close()

	_, err = repo.Get(context.Background(), "g1")
	if !errors.Is(err, errors.ErrRepositoryUnavailable) {
		t.Fatalf("期望存储不可用错误，实际: %v", err)
	}
	if errors.Is(err, errors.ErrNotFound) {
		t.Fatal("连接故障被误判为不存在")
	}
}

func TestSQLGameRepository_CanceledContext(t *testing.T) {
	repo := NewSQLGameRepository(TestDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Add(ctx, "g1", []byte("x"))
	if !errors.Is(err, errors.ErrCanceled) {
		t.Fatalf("期望取消错误，实际: %v", err)
	}
}
