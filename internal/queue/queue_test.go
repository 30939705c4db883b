package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeUnmarshalCapturesJobType(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"judge","submission_id":42}`), &env))
	require.Equal(t, JobJudge, env.JobType)
}

func TestDecodeJudgeJob(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"judge","submission_id":7,"language":"cpp"}`), &env))

	job, err := decode(env)
	require.NoError(t, err)
	require.Equal(t, JobJudge, job.Type)
	require.NotNil(t, job.Judge)
	require.Equal(t, int64(7), job.Judge.SubmissionID)
	require.Equal(t, "cpp", job.Judge.Language)
}

func TestDecodeValidateJob(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"validate","problem_id":3}`), &env))

	job, err := decode(env)
	require.NoError(t, err)
	require.Equal(t, JobValidate, job.Type)
	require.NotNil(t, job.Validate)
	require.Equal(t, int64(3), job.Validate.ProblemID)
}

func TestDecodeAnigmaJob(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"anigma","submission_id":9}`), &env))

	job, err := decode(env)
	require.NoError(t, err)
	require.Equal(t, JobAnigma, job.Type)
	require.NotNil(t, job.Anigma)
}

func TestDecodeAnigmaTask1Job(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"anigma_task1","submission_id":11}`), &env))

	job, err := decode(env)
	require.NoError(t, err)
	require.Equal(t, JobAnigmaTask1, job.Type)
	require.NotNil(t, job.AnigmaTask1)
}

func TestDecodePlaygroundJob(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"playground","session_id":"abc"}`), &env))

	job, err := decode(env)
	require.NoError(t, err)
	require.Equal(t, JobPlayground, job.Type)
	require.NotNil(t, job.Playground)
	require.Equal(t, "abc", job.Playground.SessionID)
}

func TestDecodeUnknownJobTypeErrors(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"job_type":"bogus"}`), &env))

	_, err := decode(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown job_type")
}
