package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/inbound"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const memoryQueueBuffer = 256

// BuildInboundHandler wires the SES notification decoder in front of processor.
// Raw MIME stored by an S3 receipt action is fetched with the shared AWS config.
func BuildInboundHandler(cfg *appconfig.Config, awsCfg aws.Config, processor inbound.Processor, logger *logging.Logger) *inbound.Handler {
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg != nil && cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	return inbound.NewHandler(inbound.NewDecoder(s3Client, logger), processor, logger)
}

// BuildInboundQueue returns the SQS queue when INBOUND_QUEUE_URL is set, an
// in-process queue when USE_MEMORY_QUEUE is true, and nil otherwise.
func BuildInboundQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) inbound.Queue {
	if cfg == nil {
		return nil
	}
	if url := strings.TrimSpace(cfg.InboundQueueURL); url != "" {
		return inbound.NewSQSQueue(sqs.NewFromConfig(awsCfg), url)
	}
	if cfg.UseMemoryQueue {
		if logger != nil {
			logger.Warn("using in-memory inbound queue; unprocessed mail is lost on restart")
		}
		return inbound.NewMemoryQueue(memoryQueueBuffer)
	}
	return nil
}

// BuildInboundWorker applies the configured concurrency and polling knobs.
func BuildInboundWorker(cfg *appconfig.Config, handler *inbound.Handler, queue inbound.Queue, logger *logging.Logger) *inbound.Worker {
	return inbound.NewWorker(handler, queue, logger,
		inbound.WithWorkerCount(cfg.WorkerCount),
		inbound.WithReceiveWaitSeconds(cfg.WorkerWaitSeconds),
		inbound.WithReceiveBatchSize(cfg.WorkerBatchSize),
	)
}
