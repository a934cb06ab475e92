package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/facegate/internal/domain/access"
	"github.com/bryanwahyu/facegate/internal/liveness"
)

func TestProbeReturnsNilOnNoFace(t *testing.T) {
	recog := &fakeRecognizer{detectFaces: nil}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "l"}, &fakeDoor{})
	oracle := PipelineOracle{Svc: svc, Opts: defaultOpts()}

	face, err := oracle.Probe(context.Background(), testImage())

	require.NoError(t, err)
	assert.Nil(t, face)
}

func TestProbeSurvivesLivenessRejection(t *testing.T) {
	recog := &fakeRecognizer{detectFaces: []domain.DetectedFace{
		{ID: "det-1", Attributes: domain.FaceAttributes{
			Emotions: map[string]float64{"happy": 0.9},
			Liveness: f64(0.1),
		}},
	}}
	svc := newTestService(recog, &fakeStore{url: "http://x"}, &fakeAudit{id: "l"}, &fakeDoor{})
	oracle := PipelineOracle{Svc: svc, Opts: defaultOpts()}

	// a rejected frame still yields the attribute bag a challenge needs
	face, err := oracle.Probe(context.Background(), testImage())

	require.NoError(t, err)
	require.NotNil(t, face)
	assert.InDelta(t, 0.9, face.Attributes.Emotions["happy"], 1e-9)
	assert.Equal(t, 0, recog.searchCalls)
}

func TestChallengeSessionOverPipeline(t *testing.T) {
	recog := &fakeRecognizer{}
	audit := &fakeAudit{id: "log-1"}
	door := &fakeDoor{result: true}
	svc := newTestService(recog, &fakeStore{url: "http://assets/a.jpg"}, audit, door)
	oracle := PipelineOracle{Svc: svc, Opts: defaultOpts()}

	sess := liveness.NewSession(oracle, nil)
	require.NoError(t, sess.Start())

	recog.detectFaces = []domain.DetectedFace{{ID: "d1", Attributes: domain.FaceAttributes{
		Emotions: map[string]float64{"happy": 0.8},
	}}}
	res, err := sess.Submit(context.Background(), testImage())
	require.NoError(t, err)
	assert.True(t, res.Passed)

	recog.detectFaces = []domain.DetectedFace{{ID: "d2", Attributes: domain.FaceAttributes{
		HeadPose: &domain.HeadPose{Yaw: -15},
	}}}
	res, err = sess.Submit(context.Background(), testImage())
	require.NoError(t, err)
	assert.True(t, res.Passed)

	recog.detectFaces = []domain.DetectedFace{{ID: "d3", Attributes: domain.FaceAttributes{
		HeadPose: &domain.HeadPose{Yaw: 12},
	}}}
	res, err = sess.Submit(context.Background(), testImage())
	require.NoError(t, err)
	require.True(t, res.Final)

	// registry only matches the final frame; the probe frames above ran the
	// same chain but came back NO_MATCH and never touched the door
	require.Empty(t, door.cmds)
	recog.searchRes = []domain.MatchCandidate{{Card: domain.Card{ID: "C1", Name: "Ana"}, Similarity: 0.86}}

	recog.detectFaces = []domain.DetectedFace{{ID: "d4"}}
	res, err = sess.Submit(context.Background(), testImage())
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.NotNil(t, res.Decision)
	assert.Equal(t, domain.StatusMatch, res.Decision.Status)
	assert.True(t, res.Decision.DoorOpened)

	require.Len(t, door.cmds, 1)
	assert.Equal(t, "Ana", door.cmds[0].UserName)
}
