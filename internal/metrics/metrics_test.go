package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRow(t *testing.T) {
	before := testutil.ToFloat64(rowsTotal.WithLabelValues("Genes", "inserted"))

	ObserveRow("Genes", "inserted")
	ObserveRow("Genes", "inserted")

	assert.Equal(t, before+2, testutil.ToFloat64(rowsTotal.WithLabelValues("Genes", "inserted")))
}

func TestObserveLoad(t *testing.T) {
	before := testutil.ToFloat64(loadsTotal.WithLabelValues("Patients", "fatal"))

	ObserveLoad("Patients", true)

	assert.Equal(t, before+1, testutil.ToFloat64(loadsTotal.WithLabelValues("Patients", "fatal")))
}

func TestObserveQuery(t *testing.T) {
	before := testutil.ToFloat64(queryErrorsTotal.WithLabelValues("gene_id"))

	ObserveQuery("gene_id", time.Now(), nil)
	ObserveQuery("gene_id", time.Now(), errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(queryErrorsTotal.WithLabelValues("gene_id")))
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/genes/:gene/id", "404"))

	ObserveRequest("GET", "/api/v1/genes/:gene/id", 404, time.Now())

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/genes/:gene/id", "404")))
}
