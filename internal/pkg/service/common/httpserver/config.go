package httpserver

import (
	"net/http"
)

type Config struct {
	ListenAddress string
	// Mount endpoints to the mux.
	Mount func(mux *http.ServeMux)
}
