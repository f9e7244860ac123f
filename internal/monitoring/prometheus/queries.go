package prometheus

import (
	"fmt"
	"sort"
	"strings"
)

// QueryTemplate representa um template de query PromQL
type QueryTemplate struct {
	Name        string
	Description string
	Query       string
	Variables   []string
}

// Predefined PromQL queries para métricas operacionais
var (
	// Host Queries (node_exporter)

	CPUUsageQuery = QueryTemplate{
		Name:        "cpu_usage",
		Description: "Host CPU usage percentage",
		Query: `
100 - avg(rate(node_cpu_seconds_total{instance=~"{{.instance}}",mode="idle"}[1m])) * 100
`,
		Variables: []string{"instance"},
	}

	MemoryUsageQuery = QueryTemplate{
		Name:        "memory_usage",
		Description: "Host memory usage percentage",
		Query: `
(1 - sum(node_memory_MemAvailable_bytes{instance=~"{{.instance}}"}) /
sum(node_memory_MemTotal_bytes{instance=~"{{.instance}}"})) * 100
`,
		Variables: []string{"instance"},
	}

	DiskIOQuery = QueryTemplate{
		Name:        "disk_io",
		Description: "Disk IO time percentage",
		Query: `
avg(rate(node_disk_io_time_seconds_total{instance=~"{{.instance}}"}[1m])) * 100
`,
		Variables: []string{"instance"},
	}

	NetworkRxBytesQuery = QueryTemplate{
		Name:        "network_rx_bytes",
		Description: "Network received bytes per second",
		Query: `
sum(rate(node_network_receive_bytes_total{instance=~"{{.instance}}",device!="lo"}[1m]))
`,
		Variables: []string{"instance"},
	}

	NetworkTxBytesQuery = QueryTemplate{
		Name:        "network_tx_bytes",
		Description: "Network transmitted bytes per second",
		Query: `
sum(rate(node_network_transmit_bytes_total{instance=~"{{.instance}}",device!="lo"}[1m]))
`,
		Variables: []string{"instance"},
	}

	// Container Queries (cAdvisor)

	ContainerCPUQuery = QueryTemplate{
		Name:        "container_cpu",
		Description: "Container CPU usage in cores",
		Query: `
sum(rate(container_cpu_usage_seconds_total{namespace="{{.namespace}}",pod=~"{{.pod_selector}}"}[1m]))
`,
		Variables: []string{"namespace", "pod_selector"},
	}

	ContainerMemoryQuery = QueryTemplate{
		Name:        "container_memory",
		Description: "Container working set in bytes",
		Query: `
sum(container_memory_working_set_bytes{namespace="{{.namespace}}",pod=~"{{.pod_selector}}"})
`,
		Variables: []string{"namespace", "pod_selector"},
	}

	PodRestartCountQuery = QueryTemplate{
		Name:        "pod_restart_count",
		Description: "Number of pod restarts in last 5 minutes",
		Query: `
sum(increase(kube_pod_container_status_restarts_total{namespace="{{.namespace}}",pod=~"{{.pod_selector}}"}[5m]))
`,
		Variables: []string{"namespace", "pod_selector"},
	}

	// Application Metrics

	RequestRateQuery = QueryTemplate{
		Name:        "request_rate",
		Description: "HTTP requests per second",
		Query: `
sum(rate(http_requests_total{job="{{.job}}"}[1m]))
`,
		Variables: []string{"job"},
	}

	ErrorRateQuery = QueryTemplate{
		Name:        "error_rate",
		Description: "HTTP error rate percentage (5xx)",
		Query: `
sum(rate(http_requests_total{job="{{.job}}",status=~"5.."}[1m])) /
sum(rate(http_requests_total{job="{{.job}}"}[1m])) * 100
`,
		Variables: []string{"job"},
	}

	P95LatencyQuery = QueryTemplate{
		Name:        "p95_latency",
		Description: "P95 latency in milliseconds",
		Query: `
histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket{job="{{.job}}"}[5m])) by (le)) * 1000
`,
		Variables: []string{"job"},
	}

	P99LatencyQuery = QueryTemplate{
		Name:        "p99_latency",
		Description: "P99 latency in milliseconds",
		Query: `
histogram_quantile(0.99, sum(rate(http_request_duration_seconds_bucket{job="{{.job}}"}[5m])) by (le)) * 1000
`,
		Variables: []string{"job"},
	}
)

// QueryBuilder constrói queries substituindo variáveis
type QueryBuilder struct {
	template QueryTemplate
	vars     map[string]string
}

// NewQueryBuilder cria um novo builder
func NewQueryBuilder(template QueryTemplate) *QueryBuilder {
	return &QueryBuilder{
		template: template,
		vars:     make(map[string]string),
	}
}

// With define uma variável
func (qb *QueryBuilder) With(key, value string) *QueryBuilder {
	qb.vars[key] = value
	return qb
}

// WithVars define várias variáveis de uma vez
func (qb *QueryBuilder) WithVars(vars map[string]string) *QueryBuilder {
	for key, value := range vars {
		qb.vars[key] = value
	}
	return qb
}

// WithInstance define o seletor de instância
func (qb *QueryBuilder) WithInstance(instance string) *QueryBuilder {
	qb.vars["instance"] = instance
	return qb
}

// WithJob define o job da aplicação
func (qb *QueryBuilder) WithJob(job string) *QueryBuilder {
	qb.vars["job"] = job
	return qb
}

// WithNamespace define o namespace
func (qb *QueryBuilder) WithNamespace(namespace string) *QueryBuilder {
	qb.vars["namespace"] = namespace
	return qb
}

// WithWorkload define o nome do workload e o pod selector derivado
func (qb *QueryBuilder) WithWorkload(name string) *QueryBuilder {
	qb.vars["pod_selector"] = name + ".*"
	return qb
}

// WithPodSelector define um pod selector customizado
func (qb *QueryBuilder) WithPodSelector(selector string) *QueryBuilder {
	qb.vars["pod_selector"] = selector
	return qb
}

// Build constrói a query final
func (qb *QueryBuilder) Build() (string, error) {
	query := strings.TrimSpace(qb.template.Query)

	// Substitui variáveis
	for key, value := range qb.vars {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		query = strings.ReplaceAll(query, placeholder, value)
	}

	// Verifica se ainda há placeholders não substituídos
	if strings.Contains(query, "{{.") {
		return "", fmt.Errorf("query %s contains unsubstituted variables", qb.template.Name)
	}

	// Remove quebras de linha extras e espaços
	query = strings.Join(strings.Fields(query), " ")

	return query, nil
}

// GetAllTemplates retorna todos os templates disponíveis
func GetAllTemplates() []QueryTemplate {
	return []QueryTemplate{
		CPUUsageQuery,
		MemoryUsageQuery,
		DiskIOQuery,
		NetworkRxBytesQuery,
		NetworkTxBytesQuery,
		ContainerCPUQuery,
		ContainerMemoryQuery,
		PodRestartCountQuery,
		RequestRateQuery,
		ErrorRateQuery,
		P95LatencyQuery,
		P99LatencyQuery,
	}
}

// TemplateByName busca template pelo nome
func TemplateByName(name string) (QueryTemplate, bool) {
	for _, tmpl := range GetAllTemplates() {
		if tmpl.Name == name {
			return tmpl, true
		}
	}
	return QueryTemplate{}, false
}

// TemplateNames retorna os nomes dos templates em ordem
func TemplateNames() []string {
	names := make([]string, 0, len(GetAllTemplates()))
	for _, tmpl := range GetAllTemplates() {
		names = append(names, tmpl.Name)
	}
	sort.Strings(names)
	return names
}

// ResolveQuery retorna a query PromQL de uma métrica: query explícita tem
// precedência, senão o template nomeado é preenchido com vars
func ResolveQuery(query, template string, vars map[string]string) (string, error) {
	if strings.TrimSpace(query) != "" {
		return strings.Join(strings.Fields(query), " "), nil
	}
	if template == "" {
		return "", fmt.Errorf("metric needs either a query or a template")
	}

	tmpl, ok := TemplateByName(template)
	if !ok {
		return "", fmt.Errorf("unknown query template %q (available: %s)", template, strings.Join(TemplateNames(), ", "))
	}

	return NewQueryBuilder(tmpl).WithVars(vars).Build()
}
