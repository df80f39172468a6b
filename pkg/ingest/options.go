package ingest

import (
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/beaver/pkg/bqstore"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
)

// Options are the pipeline-specific settings.
type Options struct {
	// InputTopic is the topic read from, as projects/<p>/topics/<t> or a bare ID.
	InputTopic string
	// OutputTable is the destination, as project:dataset.table or dataset.table.
	OutputTable string
	// InputSubscription, when set, is read instead of an ephemeral subscription
	// on InputTopic.
	InputSubscription string
	// DeadLetterTopic, when set, receives payloads that fail to parse.
	DeadLetterTopic string

	CreateDisposition bigquery.TableCreateDisposition
	WriteDisposition  bigquery.TableWriteDisposition
}

// Validate reports missing required options.
func (o Options) Validate() error {
	var errs []error
	if o.InputTopic == "" {
		errs = append(errs, errors.New("--input_topic is required"))
	}
	if o.OutputTable == "" {
		errs = append(errs, errors.New("--output_table is required"))
	}
	return errors.Join(errs...)
}

// resolved holds the parsed forms of Options.
type resolved struct {
	topic        messagepipeline.ResourceName
	subscription *messagepipeline.ResourceName
	deadLetter   *messagepipeline.ResourceName
	sink         *bqstore.BigQuerySinkConfig
}

func (o Options) resolve(defaultProject string) (*resolved, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	topic, err := messagepipeline.ParseTopicPath(o.InputTopic, defaultProject)
	if err != nil {
		return nil, fmt.Errorf("invalid --input_topic: %w", err)
	}
	// Bare names elsewhere default to the topic's project.
	if defaultProject == "" {
		defaultProject = topic.ProjectID
	}

	table, err := bqstore.ParseTableSpec(o.OutputTable, defaultProject)
	if err != nil {
		return nil, fmt.Errorf("invalid --output_table: %w", err)
	}
	schema, err := bqstore.ParseSchema(DefaultSchema)
	if err != nil {
		return nil, err
	}

	r := &resolved{
		topic: topic,
		sink: &bqstore.BigQuerySinkConfig{
			ProjectID:         table.ProjectID,
			DatasetID:         table.DatasetID,
			TableID:           table.TableID,
			Schema:            schema,
			CreateDisposition: o.CreateDisposition,
			WriteDisposition:  o.WriteDisposition,
		},
	}
	if r.sink.CreateDisposition == "" {
		r.sink.CreateDisposition = bigquery.CreateIfNeeded
	}
	if r.sink.WriteDisposition == "" {
		r.sink.WriteDisposition = bigquery.WriteAppend
	}

	if o.InputSubscription != "" {
		sub, err := messagepipeline.ParseSubscriptionPath(o.InputSubscription, topic.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("invalid --input_subscription: %w", err)
		}
		r.subscription = &sub
	}
	if o.DeadLetterTopic != "" {
		dlt, err := messagepipeline.ParseTopicPath(o.DeadLetterTopic, topic.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("invalid --dead_letter_topic: %w", err)
		}
		r.deadLetter = &dlt
	}
	return r, nil
}
