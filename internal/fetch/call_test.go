package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gitviz/internal/apperror"
)

func TestCall_LoadingThenData(t *testing.T) {
	release := make(chan struct{})
	f, url, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		respond(http.StatusOK, `{"id": 3, "username": "ada"}`)(w, r)
	})

	c := Go[testUser](context.Background(), f, url, userSchema, "tok")
	assert.Equal(t, Loading, c.Status())
	assert.Equal(t, Loading, c.Result().Status)

	close(release)
	u, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)
	assert.Equal(t, Ready, c.Status())

	res := c.Result()
	require.NotNil(t, res.Data)
	assert.Equal(t, int64(3), res.Data.ID)
	assert.NoError(t, res.Err())
}

func TestCall_Error(t *testing.T) {
	f, url, _ := newServer(t, respond(http.StatusUnauthorized, ``))

	c := Go[testUser](context.Background(), f, url, userSchema, "tok")
	<-c.Done()

	assert.Equal(t, Failed, c.Status())
	res := c.Result()
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Error)
	assert.True(t, errors.Is(res.Err(), apperror.ErrAuth))
}

func TestCall_WaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f, url, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})

	c := Go[testUser](context.Background(), f, url, userSchema, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Loading, c.Status())
}

func TestResult_JSON(t *testing.T) {
	b, err := json.Marshal(Result[testUser]{Status: Loading})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"loading"}`, string(b))

	b, err = json.Marshal(Result[testUser]{Status: Ready, Data: &testUser{ID: 1, Username: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"data","data":{"id":1,"username":"x"}}`, string(b))
}
