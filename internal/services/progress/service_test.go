package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/FabTrack/internal/apperr"
	cachemocks "github.com/BearBump/FabTrack/internal/cache/mocks"
	"github.com/BearBump/FabTrack/internal/models"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/BearBump/FabTrack/internal/storage/memfab"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ServiceSuite struct {
	suite.Suite

	repo  *memfab.Storage
	cache *cachemocks.MockBytesCache
	svc   *Service
}

func d(y int, m time.Month, day int) *time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func (s *ServiceSuite) SetupTest() {
	s.repo = memfab.New()
	_, err := s.repo.UpsertAssemblies(context.Background(), []models.AssemblyInput{{
		AssemblyCode: "A1",
		Pipeline:     stages.Pipeline7,
		Stages:       stages.Values{stages.FitUp: d(2024, 1, 1), stages.NDE: d(2024, 1, 5)},
	}})
	s.Require().NoError(err)

	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.cache, 5*time.Minute)
}

func (s *ServiceSuite) TestGetProgress_CacheMiss_LoadsAndStores() {
	s.cache.On("Get", mock.Anything, "assembly:A1:progress").Return([]byte(nil), false, nil).Once()
	s.cache.On("Set", mock.Anything, "assembly:A1:progress", mock.Anything, 5*time.Minute).Return(nil).Once()

	v, err := s.svc.GetProgress(context.Background(), " A1 ")
	s.Require().NoError(err)
	s.Require().Equal(stages.StatusInProgress, v.Status)
	s.Require().Equal(stages.NDE, v.LastCompleted)
	s.Require().Equal(stages.VIDI, v.Next)
	s.Require().Len(v.Stages, 7)
	s.Require().Equal("COMPLETED", v.Stages[0].State)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetProgress_CacheHit_NoRepo() {
	cached := View{AssemblyCode: "CACHED", Status: stages.StatusComplete}
	b, _ := json.Marshal(cached)
	s.cache.On("Get", mock.Anything, "assembly:CACHED:progress").Return(b, true, nil).Once()

	// CACHED нет в хранилище: ответ может прийти только из кэша
	v, err := s.svc.GetProgress(context.Background(), "CACHED")
	s.Require().NoError(err)
	s.Require().Equal(stages.StatusComplete, v.Status)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetProgress_CacheErrorsAreIgnored() {
	s.cache.On("Get", mock.Anything, "assembly:A1:progress").Return([]byte(nil), false, errors.New("redis down")).Once()
	s.cache.On("Set", mock.Anything, "assembly:A1:progress", mock.Anything, 5*time.Minute).Return(errors.New("redis down")).Once()

	v, err := s.svc.GetProgress(context.Background(), "A1")
	s.Require().NoError(err)
	s.Require().Equal("A1", v.AssemblyCode)
}

func (s *ServiceSuite) TestGetProgress_BadJSONIsMiss() {
	s.cache.On("Get", mock.Anything, "assembly:A1:progress").Return([]byte("{"), true, nil).Once()
	s.cache.On("Set", mock.Anything, "assembly:A1:progress", mock.Anything, 5*time.Minute).Return(nil).Once()

	_, err := s.svc.GetProgress(context.Background(), "A1")
	s.Require().NoError(err)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetProgress_NotFoundAndValidation() {
	s.cache.On("Get", mock.Anything, "assembly:NOPE:progress").Return([]byte(nil), false, nil).Once()
	_, err := s.svc.GetProgress(context.Background(), "NOPE")
	s.Require().ErrorIs(err, apperr.ErrNotFound)

	_, err = s.svc.GetProgress(context.Background(), "  ")
	s.Require().ErrorIs(err, apperr.ErrValidation)
}

func (s *ServiceSuite) TestRefresh_OverwritesCache() {
	s.cache.On("Set", mock.Anything, "assembly:A1:progress", mock.MatchedBy(func(b []byte) bool {
		var v View
		return json.Unmarshal(b, &v) == nil && v.LastCompleted == stages.NDE
	}), 5*time.Minute).Return(nil).Once()

	s.Require().NoError(s.svc.Refresh(context.Background(), "A1"))
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCacheDisabled() {
	svc := New(s.repo, s.cache, 0)
	v, err := svc.GetProgress(context.Background(), "A1")
	s.Require().NoError(err)
	s.Require().Equal("A1", v.AssemblyCode)
	s.Require().NoError(svc.Refresh(context.Background(), "A1"))
	s.Require().NoError(svc.Invalidate(context.Background(), "A1"))

	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Delete", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestInvalidate_DeletesEveryKey() {
	s.cache.On("Delete", mock.Anything, "assembly:A1:progress").Return(errors.New("redis down")).Once()
	s.cache.On("Delete", mock.Anything, "assembly:A2:progress").Return(nil).Once()

	err := s.svc.Invalidate(context.Background(), "A1", "A2")
	s.Require().EqualError(err, "redis down")
	s.cache.AssertExpectations(s.T())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func TestFromAssembly_UnknownPipeline(t *testing.T) {
	_, err := FromAssembly(&models.AssemblyRecord{AssemblyCode: "X", Pipeline: "PIPELINE_9"})
	require.ErrorIs(t, err, apperr.ErrStateConflict)
}

func TestFromAssembly_SkippedStage(t *testing.T) {
	v, err := FromAssembly(&models.AssemblyRecord{
		AssemblyCode: "S1",
		Pipeline:     stages.Pipeline8,
		Stages: stages.Values{
			stages.FitUp: d(2024, 3, 1),
			stages.Final: &stages.SentinelDate,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "SKIPPED", v.Stages[1].State)
	require.Equal(t, stages.ArupFinal, v.Next)
	require.Equal(t, 7, v.RequiredCount)
}
