package server

import (
	"errors"
	"net/http"

	"github.com/KaramelBytes/clusterlens/internal/ai"
	"github.com/KaramelBytes/clusterlens/internal/assistant"
	"github.com/KaramelBytes/clusterlens/internal/chart"
	"github.com/KaramelBytes/clusterlens/internal/cluster"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/preprocess"
	"github.com/KaramelBytes/clusterlens/internal/profile"
	"github.com/KaramelBytes/clusterlens/internal/session"
	"github.com/go-chi/render"
)

// Response is the envelope of every JSON reply. Status is 0 on success and
// the HTTP status code otherwise.
type Response struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

var errNotFound = errors.New("not found")

func ok(w http.ResponseWriter, r *http.Request, msg string, data any) {
	render.JSON(w, r, Response{Status: 0, Msg: msg, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	render.Status(r, code)
	render.JSON(w, r, Response{Status: code, Msg: err.Error()})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		upload   *dataset.UploadFormatError
		empty    *preprocess.EmptySelectionError
		unknown  *preprocess.UnknownFeatureError
		novar    *preprocess.NoVarianceError
		inf      *preprocess.NonFiniteError
		degen    *cluster.DegenerateDataError
		noClust  *profile.NoClusterColumnError
		auth     *ai.AuthError
		rate     *ai.RateLimitError
		notFound *ai.ModelNotFoundError
		rng      *session.RangeError
		tooBig   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &upload), errors.As(err, &empty), errors.As(err, &unknown),
		errors.Is(err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.As(err, &novar), errors.As(err, &inf), errors.As(err, &degen):
		return http.StatusUnprocessableEntity
	case errors.As(err, &noClust), errors.Is(err, session.ErrNoDataset), errors.Is(err, assistant.ErrNoDataset):
		return http.StatusConflict
	case errors.As(err, &rng):
		if rng.What == "cluster" {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, chart.ErrNoData):
		return http.StatusNotFound
	case errors.As(err, &auth), errors.As(err, &rate), errors.As(err, &notFound):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
