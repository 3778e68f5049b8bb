// FilePath: api/resources/api.resource.helpers.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/schema"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/errors"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func decodeQuery(r *http.Request, dst interface{}) error {
	return queryDecoder.Decode(dst, r.URL.Query())
}

func respondWithError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*errors.APIError)
	if !ok {
		apiErr = errors.NewInternalError("internal server error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Code)
	json.NewEncoder(w).Encode(apiErr)
	nuts.L.Errorf("[API] %s", apiErr.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
