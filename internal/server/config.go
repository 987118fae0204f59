package server

import (
	"github.com/raysh454/lotsync/internal/app"
	"github.com/raysh454/lotsync/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server. Empty uses
	// AppConfig.ListenAddr.
	ListenAddr string

	// AppConfig is used when the server builds its own Application.
	AppConfig *app.Config
	Logger    logging.Logger
}
