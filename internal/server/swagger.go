package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title lotsync API
// @version 0.1
// @description Trigger and inspect dealership inventory reconciliation.
// @contact.name lotsync maintainers
// @contact.url https://github.com/raysh454/lotsync
// @BasePath /
