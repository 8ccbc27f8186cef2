package main

import (
	"context"
	"log"
	"time"

	"safimatch/config"
	"safimatch/utils"
)

// grants 给 anon / authenticated 角色开放 schema、视图和业务表
var grants = []string{
	"GRANT USAGE ON SCHEMA public TO anon, authenticated",
	"GRANT SELECT ON ALL TABLES IN SCHEMA public TO anon, authenticated",
	"GRANT SELECT ON public.matches_com_perfis TO anon, authenticated",
	"GRANT SELECT ON public.perfis_publicos TO anon, authenticated",
	"GRANT SELECT ON public.configuracoes_usuario TO anon, authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.perfis TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.curtidas TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.matches TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.mensagens TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.configuracoes_usuario TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.bloqueios TO authenticated",
	"GRANT INSERT, UPDATE, DELETE ON public.denuncias TO authenticated",
	"GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO anon, authenticated",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := utils.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var failed int
	for _, stmt := range grants {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			log.Printf("[ERROR] %s: %v", stmt, err)
			failed++
			continue
		}
		log.Printf("[INFO] %s", stmt)
	}

	if failed > 0 {
		log.Fatalf("%d grant statements failed", failed)
	}
	log.Println("✅ Grants applied")
}
