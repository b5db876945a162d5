package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"mycareerbox/internal/model"
)

const (
	userKeyPrefix  = "USER#"
	entryKeyPrefix = "ENTRY#"
)

// DynamoAPI is the part of the DynamoDB client the record repository needs.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// recordItem is the stored shape of a record. The document id lives only in
// the sort key.
type recordItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	Company        string `dynamodbav:"company"`
	Position       string `dynamodbav:"position"`
	URL            string `dynamodbav:"url"`
	Contact        string `dynamodbav:"contact"`
	JobDescription string `dynamodbav:"job_description"`
	Status         string `dynamodbav:"status"`
	Date           string `dynamodbav:"date"`
	ResumeFilename string `dynamodbav:"resume_filename"`
}

// MakeRecordKeys builds the partition key (the user's email) and the sort key
// (the document id) of one entry.
func MakeRecordKeys(userID, documentID string) (pk, sk string) {
	return userKeyPrefix + userID, entryKeyPrefix + documentID
}

// RecordRepository keeps each user's applications in a single DynamoDB
// partition: PK = USER#<email>, SK = ENTRY#<ulid>.
type RecordRepository struct {
	db    DynamoAPI
	table string
	newID func() string
}

func NewRecordRepository(db DynamoAPI, table string) *RecordRepository {
	return &RecordRepository{
		db:    db,
		table: table,
		newID: func() string { return ulid.Make().String() },
	}
}

// List loads every record of the user, newest first.
func (r *RecordRepository) List(ctx context.Context, userID string) ([]model.Record, error) {
	pk, _ := MakeRecordKeys(userID, "")
	paginator := dynamodb.NewQueryPaginator(r.db, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
			":sk": &types.AttributeValueMemberS{Value: entryKeyPrefix},
		},
	})

	var records []model.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: query records failed: %w", ErrRepository, err)
		}

		var items []recordItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("%w: decode records failed: %w", ErrRepository, err)
		}
		for _, item := range items {
			rec, err := item.toRecord()
			if err != nil {
				return nil, fmt.Errorf("%w: malformed record %s: %w", ErrRepository, item.SK, err)
			}
			records = append(records, rec)
		}
	}

	model.SortRecords(records)
	return records, nil
}

// Create appends a new document and returns its generated id. It never
// overwrites an existing entry.
func (r *RecordRepository) Create(ctx context.Context, userID string, rec model.Record) (string, error) {
	documentID := r.newID()
	item := newRecordItem(userID, documentID, rec)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("%w: encode record failed: %w", ErrRepository, err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put record failed: %w", ErrRepository, err)
	}
	return documentID, nil
}

// UpdateStatus rewrites only the status attribute of an existing document.
func (r *RecordRepository) UpdateStatus(ctx context.Context, userID, documentID string, status model.Status) error {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 recordKey(userID, documentID),
		UpdateExpression:    aws.String("SET #status = :status"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		// status is a DynamoDB reserved word.
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %w", ErrRepository, ErrRecordNotFound)
		}
		return fmt.Errorf("%w: update record status failed: %w", ErrRepository, err)
	}
	return nil
}

func (r *RecordRepository) Delete(ctx context.Context, userID, documentID string) error {
	_, err := r.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       recordKey(userID, documentID),
	})
	if err != nil {
		return fmt.Errorf("%w: delete record failed: %w", ErrRepository, err)
	}
	return nil
}

func recordKey(userID, documentID string) map[string]types.AttributeValue {
	pk, sk := MakeRecordKeys(userID, documentID)
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func newRecordItem(userID, documentID string, rec model.Record) recordItem {
	pk, sk := MakeRecordKeys(userID, documentID)
	resume := rec.ResumeFilename
	if resume == "" {
		resume = model.NoResume
	}
	return recordItem{
		PK:             pk,
		SK:             sk,
		Company:        rec.Company,
		Position:       rec.Position,
		URL:            rec.URL,
		Contact:        rec.Contact,
		JobDescription: rec.JobDescription,
		Status:         string(rec.Status),
		Date:           rec.Date.Format(model.DateLayout),
		ResumeFilename: resume,
	}
}

func (it recordItem) toRecord() (model.Record, error) {
	documentID, ok := strings.CutPrefix(it.SK, entryKeyPrefix)
	if !ok || documentID == "" {
		return model.Record{}, errors.New("missing document id")
	}
	date, err := time.Parse(model.DateLayout, it.Date)
	if err != nil {
		return model.Record{}, fmt.Errorf("parse date: %w", err)
	}
	return model.Record{
		DocumentID:     documentID,
		Company:        it.Company,
		Position:       it.Position,
		URL:            it.URL,
		Contact:        it.Contact,
		JobDescription: it.JobDescription,
		Status:         model.Status(it.Status),
		Date:           date,
		ResumeFilename: it.ResumeFilename,
	}, nil
}
