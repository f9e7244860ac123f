package prometheus

import (
	"strings"
	"testing"
)

// TestQueryBuilder testa o builder de queries
func TestQueryBuilder(t *testing.T) {
	tests := []struct {
		name      string
		template  QueryTemplate
		vars      map[string]string
		wantErr   bool
		wantQuery string
	}{
		{
			name:     "CPU Usage Query",
			template: CPUUsageQuery,
			vars: map[string]string{
				"instance": "node-1:9100",
			},
			wantErr:   false,
			wantQuery: "node-1:9100",
		},
		{
			name:     "Container Memory Query",
			template: ContainerMemoryQuery,
			vars: map[string]string{
				"namespace":    "staging",
				"pod_selector": "test-app.*",
			},
			wantErr:   false,
			wantQuery: "staging",
		},
		{
			name:     "Missing Variables",
			template: ErrorRateQuery,
			vars:     map[string]string{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := NewQueryBuilder(tt.template).WithVars(tt.vars).Build()

			if (err != nil) != tt.wantErr {
				t.Errorf("Build() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if query == "" {
					t.Error("Expected non-empty query")
				}

				if !strings.Contains(query, tt.wantQuery) {
					t.Errorf("Query does not contain expected value: %s", tt.wantQuery)
				}

				// Verifica que não há placeholders não substituídos
				if strings.Contains(query, "{{.") {
					t.Error("Query contains unsubstituted placeholders")
				}

				// Sem quebras de linha após o Build
				if strings.Contains(query, "\n") {
					t.Error("Query contains newlines")
				}
			}
		})
	}
}

// TestQueryBuilderMethods testa os métodos fluent
func TestQueryBuilderMethods(t *testing.T) {
	query, err := NewQueryBuilder(ContainerCPUQuery).
		WithNamespace("production").
		WithWorkload("my-app").
		Build()

	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(query, `namespace="production"`) {
		t.Error("Query does not contain namespace")
	}

	// pod_selector derivado do workload
	if !strings.Contains(query, `pod=~"my-app.*"`) {
		t.Error("Query does not contain pod selector")
	}
}

// TestResolveQuery testa a resolução query explícita vs template
func TestResolveQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		template string
		vars     map[string]string
		wantErr  bool
		contains []string
	}{
		{
			name:     "explicit query wins over template",
			query:    "  sum(rate(foo_total[1m]))\n",
			template: "cpu_usage",
			contains: []string{"sum(rate(foo_total[1m]))"},
		},
		{
			name:     "template with vars",
			template: "request_rate",
			vars:     map[string]string{"job": "api"},
			contains: []string{`job="api"`, "http_requests_total"},
		},
		{
			name:     "p95 template",
			template: "p95_latency",
			vars:     map[string]string{"job": "api"},
			contains: []string{"0.95", "histogram_quantile"},
		},
		{
			name:     "unknown template",
			template: "does_not_exist",
			wantErr:  true,
		},
		{
			name:    "neither query nor template",
			wantErr: true,
		},
		{
			name:     "template missing vars",
			template: "disk_io",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := ResolveQuery(tt.query, tt.template, tt.vars)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, expected := range tt.contains {
				if !strings.Contains(query, expected) {
					t.Errorf("Query %q não contém %q", query, expected)
				}
			}
		})
	}
}

// TestGetAllTemplates testa GetAllTemplates
func TestGetAllTemplates(t *testing.T) {
	templates := GetAllTemplates()

	if len(templates) == 0 {
		t.Error("Expected at least one template")
	}

	seen := make(map[string]bool)
	for _, tmpl := range templates {
		if tmpl.Name == "" {
			t.Error("Template without name")
		}
		if tmpl.Description == "" {
			t.Error("Template without description")
		}
		if tmpl.Query == "" {
			t.Error("Template without query")
		}
		if seen[tmpl.Name] {
			t.Errorf("Template duplicado: %s", tmpl.Name)
		}
		seen[tmpl.Name] = true
	}

	for _, name := range []string{"cpu_usage", "memory_usage", "disk_io", "request_rate", "error_rate", "p95_latency"} {
		if _, ok := TemplateByName(name); !ok {
			t.Errorf("Expected template %s not found", name)
		}
	}
}

// TestQueryTemplateVariables testa que templates declaram os placeholders que usam
func TestQueryTemplateVariables(t *testing.T) {
	for _, tmpl := range GetAllTemplates() {
		t.Run(tmpl.Name, func(t *testing.T) {
			for _, varName := range tmpl.Variables {
				placeholder := "{{." + varName + "}}"
				if !strings.Contains(tmpl.Query, placeholder) {
					t.Errorf("Query does not contain placeholder %s", placeholder)
				}
			}

			vars := make(map[string]string)
			for _, varName := range tmpl.Variables {
				vars[varName] = "x"
			}
			if _, err := NewQueryBuilder(tmpl).WithVars(vars).Build(); err != nil {
				t.Errorf("Template com variáveis não declaradas: %v", err)
			}
		})
	}
}

// BenchmarkQueryBuilder benchmark para query builder
func BenchmarkQueryBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = NewQueryBuilder(ContainerCPUQuery).
			WithNamespace("production").
			WithWorkload("my-app").
			Build()
	}
}
