package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServer(t *testing.T) {
	rec := httptest.NewRecorder()

	body := strings.NewReader(`{
		"node_id" : "4f9393d5-18a5-4dab-bf29-e82f91d600ce",
		"metrics" : [
			{
				"version" : 1,
				"timestamp" : "2023-09-22T12:42:31+07:00",
				"type" : 1,
				"payload" : {
					"version":1,
					"last_event_id":420518501032067
				}
			}
		]
	}`)

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Api-Key", "key-1")

	m := &mock{}
	c := &config{apiKeys: []string{"key-1"}}
	makeHandler(m, c)(rec, req)
	if rec.Code != 200 || !m.called {
		t.Fail()
	}
}

func TestServerUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
	req.Header.Set("Api-Key", "wrong")

	m := &mock{}
	c := &config{apiKeys: []string{"key-1"}}
	makeHandler(m, c)(rec, req)
	if rec.Code != 401 || m.called {
		t.Fail()
	}
}

type mock struct {
	called bool
}

func (m *mock) insert(_ context.Context, _ request) error {
	m.called = true
	return nil
}
