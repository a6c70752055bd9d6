package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/catchallhq/dental-crm/internal/calllog"
)

const sampleTranscript = `상담원: 안녕하세요, 캐치올치과입니다.
고객: 네 안녕하세요. 임플란트 상담을 좀 받고 싶어서요.
상담원: 네, 혹시 저희 치과 내원하신 적 있으세요?
고객: 아니요, 처음이에요. 어금니 하나가 빠진 지 좀 됐는데 비용이 어느 정도인지 궁금해서요.
상담원: 상태에 따라 다른데 정확한 비용은 검진 후에 안내드릴 수 있어요. 이번 주에 상담 예약 도와드릴까요?
고객: 네, 토요일 오전에 가능할까요?
상담원: 토요일 10시 괜찮으세요?
고객: 네 좋아요. 그때 뵐게요.`

// Runs the call analysis prompt against the configured LLM providers.
// Pass a transcript file as the first argument to analyze a real call.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	transcript := sampleTranscript
	if len(os.Args) > 1 {
		raw, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatalf("read transcript: %v", err)
		}
		transcript = string(raw)
	}

	fmt.Println("Call Analysis Provider Test")
	fmt.Println("===========================")

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey != "" {
		fmt.Println("\n[1] Testing Gemini...")
		gemini, err := calllog.NewGeminiLLMClient(ctx, geminiKey, os.Getenv("GEMINI_MODEL_ID"))
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			runSummarizer(ctx, "Gemini", calllog.NewSummarizer(gemini, ""), transcript)
			_ = gemini.Close()
		}
	} else {
		fmt.Println("\n[1] Skipping Gemini (GEMINI_API_KEY not set)")
	}

	modelID := os.Getenv("BEDROCK_MODEL_ID")
	if modelID != "" {
		fmt.Println("\n[2] Testing Bedrock...")
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			fmt.Printf("    failed to load AWS config: %v\n", err)
		} else {
			bedrock := calllog.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
			runSummarizer(ctx, "Bedrock", calllog.NewSummarizer(bedrock, modelID), transcript)
		}
	} else {
		fmt.Println("\n[2] Skipping Bedrock (BEDROCK_MODEL_ID not set)")
	}
}

func runSummarizer(ctx context.Context, name string, s *calllog.Summarizer, transcript string) {
	start := time.Now()
	analysis, err := s.Summarize(ctx, transcript)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    %s error: %v\n", name, err)
		return
	}
	fmt.Printf("    %s response (%v):\n", name, elapsed.Round(time.Millisecond))
	fmt.Printf("    classification: %s\n", analysis.Classification)
	fmt.Printf("    temperature:    %s\n", analysis.Temperature)
	fmt.Printf("    interest:       %s\n", analysis.Interest)
	fmt.Printf("    summary:        %s\n", analysis.Summary)
	fmt.Printf("    follow-up:      %s\n", analysis.FollowUp)
	fmt.Printf("    confidence:     %.2f\n", analysis.Confidence)
}
