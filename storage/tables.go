package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
)

// Tables is the Azure Table Storage implementation of Remote. Rows are
// partitioned by user id with the entity id as row key.
type Tables struct {
	taskTable     *aztables.Client
	categoryTable *aztables.Client
}

// NewTables creates a Tables remote from the given connection string.
func NewTables(connStr, tasksTable, categoriesTable string) (*Tables, error) {
	clientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &clientOptions)
	if err != nil {
		return nil, err
	}
	return &Tables{
		taskTable:     svc.NewClient(tasksTable),
		categoryTable: svc.NewClient(categoriesTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title      string `json:"Title"`
	Priority   string `json:"Priority"`
	Status     string `json:"Status"`
	Completed  bool   `json:"Completed"`
	CategoryID string `json:"CategoryId"`
	DueDate    string `json:"DueDate"`
	Position   int    `json:"Position"`
	CreatedAt  string `json:"CreatedAt"`
}

type categoryEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Color     string `json:"Color"`
	CreatedAt string `json:"CreatedAt"`
}

func taskEntityFromRow(row TaskRow) taskEntity {
	return taskEntity{
		Entity:     aztables.Entity{PartitionKey: row.UserID, RowKey: row.ID},
		Title:      row.Title,
		Priority:   row.Priority,
		Status:     row.Status,
		Completed:  row.Completed,
		CategoryID: row.CategoryID,
		DueDate:    row.DueDate,
		Position:   row.Position,
		CreatedAt:  row.CreatedAt,
	}
}

func rowFromTaskEntity(ent taskEntity) TaskRow {
	return TaskRow{
		ID:         ent.RowKey,
		UserID:     ent.PartitionKey,
		Title:      ent.Title,
		Priority:   ent.Priority,
		Status:     ent.Status,
		Completed:  ent.Completed,
		CategoryID: ent.CategoryID,
		DueDate:    ent.DueDate,
		Position:   ent.Position,
		CreatedAt:  ent.CreatedAt,
	}
}

// Tasks retrieves all task rows for the provided user, position ascending.
func (s *Tables) Tasks(ctx context.Context, userID string) ([]TaskRow, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []TaskRow{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, rowFromTaskEntity(ent))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

// Categories retrieves all category rows for the provided user in creation order.
func (s *Tables) Categories(ctx context.Context, userID string) ([]CategoryRow, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.categoryTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []CategoryRow{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent categoryEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, CategoryRow{
				ID:        ent.RowKey,
				UserID:    ent.PartitionKey,
				Name:      ent.Name,
				Color:     ent.Color,
				CreatedAt: ent.CreatedAt,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt < rows[j].CreatedAt })
	return rows, nil
}

// InsertTask stores a task row, assigning id and creation timestamp when absent.
func (s *Tables) InsertTask(ctx context.Context, row TaskRow) (TaskRow, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt == "" {
		row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(taskEntityFromRow(row))
	if err != nil {
		return TaskRow{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return TaskRow{}, err
	}
	return row, nil
}

// InsertTasks bulk-inserts rows as transactional batches, returning them in
// input order with ids and creation timestamps assigned when absent.
func (s *Tables) InsertTasks(ctx context.Context, rows []TaskRow) ([]TaskRow, error) {
	if len(rows) == 0 {
		return []TaskRow{}, nil
	}
	out := make([]TaskRow, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt == "" {
			row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		}
		out = append(out, row)
	}
	actions, err := insertActions(out)
	if err != nil {
		return nil, err
	}
	if err := s.submitBatches(ctx, s.taskTable, actions); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTask merges the set patch fields into an existing task row.
func (s *Tables) UpdateTask(ctx context.Context, userID, taskID string, patch TaskRowPatch) error {
	fields := map[string]any{
		"PartitionKey": userID,
		"RowKey":       taskID,
	}
	if patch.Title != nil {
		fields["Title"] = *patch.Title
	}
	if patch.Priority != nil {
		fields["Priority"] = *patch.Priority
	}
	if patch.Status != nil {
		fields["Status"] = *patch.Status
	}
	if patch.Completed != nil {
		fields["Completed"] = *patch.Completed
	}
	if patch.CategoryID != nil {
		fields["CategoryId"] = *patch.CategoryID
	}
	if patch.DueDate != nil {
		fields["DueDate"] = *patch.DueDate
	}
	if patch.Position != nil {
		fields["Position"] = *patch.Position
	}
	return s.mergeEntity(ctx, s.taskTable, fields)
}

// UpdatePositions writes the position column for every listed task in a
// single transactional batch, so siblings never land half renumbered.
func (s *Tables) UpdatePositions(ctx context.Context, userID string, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}
	actions, err := positionActions(userID, positions)
	if err != nil {
		return err
	}
	return s.submitBatches(ctx, s.taskTable, actions)
}

// DeleteTasks removes the listed task rows in one transactional batch.
// Missing rows are not an error, but the service rejects a batch containing
// one, so that case retries row by row.
func (s *Tables) DeleteTasks(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.submitBatches(ctx, s.taskTable, deleteActions(userID, ids))
	if err == nil || !isNotFound(err) {
		return err
	}
	for _, id := range ids {
		if _, err := s.taskTable.DeleteEntity(ctx, userID, id, nil); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// InsertCategory stores a category row, assigning id and creation timestamp
// when absent.
func (s *Tables) InsertCategory(ctx context.Context, row CategoryRow) (CategoryRow, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt == "" {
		row.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	ent := categoryEntity{
		Entity:    aztables.Entity{PartitionKey: row.UserID, RowKey: row.ID},
		Name:      row.Name,
		Color:     row.Color,
		CreatedAt: row.CreatedAt,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return CategoryRow{}, err
	}
	if _, err := s.categoryTable.AddEntity(ctx, payload, nil); err != nil {
		return CategoryRow{}, err
	}
	return row, nil
}

// UpdateCategory merges the set patch fields into an existing category row.
func (s *Tables) UpdateCategory(ctx context.Context, userID, categoryID string, patch CategoryRowPatch) error {
	fields := map[string]any{
		"PartitionKey": userID,
		"RowKey":       categoryID,
	}
	if patch.Name != nil {
		fields["Name"] = *patch.Name
	}
	if patch.Color != nil {
		fields["Color"] = *patch.Color
	}
	return s.mergeEntity(ctx, s.categoryTable, fields)
}

// DeleteCategory removes a category row. Tasks referencing it keep their
// reference; the dangling lookup is tolerated at read time.
func (s *Tables) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if _, err := s.categoryTable.DeleteEntity(ctx, userID, categoryID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// transactionLimit is the service cap on actions per batch. Every action in a
// batch must share one partition key, which holds here because all rows of a
// bulk call belong to the same user.
const transactionLimit = 100

func insertActions(rows []TaskRow) ([]aztables.TransactionAction, error) {
	actions := make([]aztables.TransactionAction, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(taskEntityFromRow(row))
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeAdd,
			Entity:     payload,
		})
	}
	return actions, nil
}

func positionActions(userID string, positions map[string]int) ([]aztables.TransactionAction, error) {
	actions := make([]aztables.TransactionAction, 0, len(positions))
	for id, pos := range positions {
		payload, err := json.Marshal(map[string]any{
			"PartitionKey": userID,
			"RowKey":       id,
			"Position":     pos,
		})
		if err != nil {
			return nil, err
		}
		et := azcore.ETagAny
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	return actions, nil
}

func deleteActions(userID string, ids []string) []aztables.TransactionAction {
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for _, id := range ids {
		payload, _ := json.Marshal(map[string]string{
			"PartitionKey": userID,
			"RowKey":       id,
		})
		et := azcore.ETagAny
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeDelete,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	return actions
}

// batchChunks splits actions into service-sized transactions.
func batchChunks(actions []aztables.TransactionAction) [][]aztables.TransactionAction {
	chunks := make([][]aztables.TransactionAction, 0, (len(actions)+transactionLimit-1)/transactionLimit)
	for len(actions) > transactionLimit {
		chunks = append(chunks, actions[:transactionLimit])
		actions = actions[transactionLimit:]
	}
	if len(actions) > 0 {
		chunks = append(chunks, actions)
	}
	return chunks
}

func (s *Tables) submitBatches(ctx context.Context, table *aztables.Client, actions []aztables.TransactionAction) error {
	for _, chunk := range batchChunks(actions) {
		if _, err := table.SubmitTransaction(ctx, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Tables) mergeEntity(ctx context.Context, table *aztables.Client, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
