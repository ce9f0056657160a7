package docs

import "testing"

func TestSwaggerInfoRegistered(t *testing.T) {
	if SwaggerInfo == nil {
		t.Fatal("swagger info not initialized")
	}
	if SwaggerInfo.Title != "Signalforge API" {
		t.Fatalf("unexpected title: %q", SwaggerInfo.Title)
	}
	if SwaggerInfo.SwaggerTemplate == "" {
		t.Fatal("swagger template missing")
	}
}
