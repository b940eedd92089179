package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		bind:        "0.0.0.0",
		port:        8080,
		wordAPI:     "https://random-word-api.herokuapp.com/word",
		wordTimeout: 10 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().validate())

	cfg := validConfig()
	cfg.port = 0
	assert.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.port = 65536
	assert.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.tlsCert = "cert.pem"
	assert.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.tlsCert = "cert.pem"
	cfg.tlsKey = "key.pem"
	assert.NoError(t, cfg.validate())

	cfg = validConfig()
	cfg.wordAPI = ""
	assert.Error(t, cfg.validate())

	cfg = validConfig()
	cfg.wordTimeout = 0
	assert.Error(t, cfg.validate())
}

func TestConfigScheme(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert = "cert.pem"
	cfg.tlsKey = "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}
