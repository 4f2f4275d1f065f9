package main

import (
	"os"

	_ "github.com/noah-isme/parade-registry-api/api/swagger"
)

// @title Parade Registry API
// @version 1.0.0
// @description Vehicle registration, QR credentials and gate validation for the Pase del Niño Viajero parade.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
