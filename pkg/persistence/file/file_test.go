package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/persistence"
)

func newTestPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func sampleProcess(t *testing.T) *models.Process {
	t.Helper()

	process := models.NewProcess("invoice approval", "invoice", "owner-1")
	require.NoError(t, process.AddNode(&models.Node{ID: "start", Name: "Start", Type: models.NodeTypeStart}))
	require.NoError(t, process.AddNode(&models.Node{ID: "end", Name: "End", Type: models.NodeTypeEnd}))
	require.NoError(t, process.AddEdge(&models.Edge{ID: "e1", SourceID: "start", TargetID: "end", Condition: models.Always()}))

	return process
}

func TestProcessRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.ProcessRepository()

	process := sampleProcess(t)
	process.Trigger = &models.TriggerPolicy{Enabled: true, On: models.TriggerOnCreate, Condition: "record.amount > 0"}

	require.NoError(t, repo.SaveProcess(ctx, process))

	loaded, err := repo.ProcessByID(ctx, process.ID)
	require.NoError(t, err)

	assert.Equal(t, process.Name, loaded.Name)
	assert.Equal(t, process.TargetType, loaded.TargetType)
	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, models.ConditionAlways, loaded.Edges[0].Condition.Type)
	require.NotNil(t, loaded.Trigger)
	assert.Equal(t, models.TriggerOnCreate, loaded.Trigger.On)
}

func TestProcessByID_NotFound(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.ProcessRepository().ProcessByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsProcessNotFound(err))
}

func TestProcesses_EmptyRoot(t *testing.T) {
	p := newTestPersistence(t)

	processes, err := p.ProcessRepository().Processes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, processes)
}

func TestProcessesByTargetType(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.ProcessRepository()

	invoiceProc := sampleProcess(t)
	require.NoError(t, repo.SaveProcess(ctx, invoiceProc))

	orderProc := models.NewProcess("order fulfilment", "order", "owner-1")
	require.NoError(t, repo.SaveProcess(ctx, orderProc))

	matched, err := repo.ProcessesByTargetType(ctx, "invoice")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, invoiceProc.ID, matched[0].ID)

	matched, err = repo.ProcessesByTargetType(ctx, "shipment")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestDeleteProcess(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.ProcessRepository()

	process := sampleProcess(t)
	require.NoError(t, repo.SaveProcess(ctx, process))
	require.NoError(t, repo.DeleteProcess(ctx, process.ID))

	_, err := repo.ProcessByID(ctx, process.ID)
	assert.True(t, persistence.IsProcessNotFound(err))

	// Deleting again is not an error.
	assert.NoError(t, repo.DeleteProcess(ctx, process.ID))
}

func TestInstanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.InstanceRepository()

	process := sampleProcess(t)
	instance := models.NewInstance(process, models.TargetRef{Type: "invoice", ID: "inv-1"}, "owner-1")
	instance.State = models.StateRunning
	instance.CurrentNodeID = "start"
	instance.History = []string{"start"}
	instance.RecordError("stuck once")

	require.NoError(t, repo.SaveInstance(ctx, instance))

	loaded, err := repo.InstanceByID(ctx, instance.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateRunning, loaded.State)
	assert.Equal(t, "start", loaded.CurrentNodeID)
	assert.Equal(t, []string{"start"}, loaded.History)
	assert.Equal(t, []string{"stuck once"}, loaded.ErrorLog)
	assert.Equal(t, instance.Target, loaded.Target)
}

func TestInstanceByID_NotFound(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.InstanceRepository().InstanceByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceFilters(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	repo := p.InstanceRepository()

	process := sampleProcess(t)
	other := models.NewProcess("other", "order", "owner-1")

	first := models.NewInstance(process, models.TargetRef{Type: "invoice", ID: "inv-1"}, "owner-1")
	second := models.NewInstance(process, models.TargetRef{Type: "invoice", ID: "inv-2"}, "owner-1")
	third := models.NewInstance(other, models.TargetRef{Type: "order", ID: "ord-1"}, "owner-1")

	for _, instance := range []*models.Instance{first, second, third} {
		require.NoError(t, repo.SaveInstance(ctx, instance))
	}

	byProcess, err := repo.InstancesByProcess(ctx, process.ID)
	require.NoError(t, err)
	assert.Len(t, byProcess, 2)

	byTarget, err := repo.InstancesByTarget(ctx, models.TargetRef{Type: "invoice", ID: "inv-2"})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, second.ID, byTarget[0].ID)

	byTarget, err = repo.InstancesByTarget(ctx, models.TargetRef{Type: "invoice", ID: "inv-9"})
	require.NoError(t, err)
	assert.Empty(t, byTarget)
}

func TestDeleteInstance_Missing(t *testing.T) {
	p := newTestPersistence(t)

	assert.NoError(t, p.InstanceRepository().DeleteInstance(context.Background(), "missing"))
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(ctx))
	assert.Error(t, NewPersistence("/nonexistent/procwise").HealthCheck(ctx))
}
