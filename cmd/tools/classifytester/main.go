package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/greenfield-labs/smartfarm/backend/internal/config"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/vision"
)

func main() {
	imagePath := flag.String("image", "", "待识别的图片路径 (jpeg/png/gif/webp)")
	serverURL := flag.String("url", "", "覆盖 CLASSIFIER_URL")
	timeout := flag.Duration("timeout", 60*time.Second, "请求超时时间")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}
	logger := config.InitLogger(cfg.Server.LogLevel, true)

	if *imagePath == "" {
		flag.Usage()
		logger.Fatal().Msg("请通过 -image 指定图片")
	}
	if *serverURL != "" {
		cfg.Vision.URL = *serverURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	classifier, err := cfg.Vision.NewClassifier(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("图像分类器初始化失败")
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("无法打开图片")
	}
	defer f.Close()

	decoded, err := vision.Decode(f, cfg.Vision.MaxPixels)
	if err != nil {
		logger.Fatal().Err(err).Msg("图片解码失败")
	}
	bounds := decoded.Image.Bounds()
	logger.Info().
		Str("format", decoded.Format).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("sha256", decoded.SHA256).
		Msg("图片已加载")

	start := time.Now()
	result, err := classifier.Classify(ctx, decoded.Image)
	if err != nil {
		logger.Fatal().Err(err).Dur("elapsed", time.Since(start)).Msg("分类失败")
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("分类完成")
	fmt.Printf("label=%s index=%d confidence=%.4f\n", result.Label, result.Index, result.Confidence)
}
