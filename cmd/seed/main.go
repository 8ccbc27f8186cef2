package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"safimatch/config"
	"safimatch/gotrue"
	"safimatch/model"
	"safimatch/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed accounts.yaml
var defaultAccounts []byte

func main() {
	accountsFile := flag.String("accounts", "", "YAML seed file (default: embedded test accounts)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.ServiceRoleKey == "" {
		log.Fatal("SUPABASE_SERVICE_ROLE_KEY is not set")
	}

	data := defaultAccounts
	if *accountsFile != "" {
		if data, err = os.ReadFile(*accountsFile); err != nil {
			log.Fatalf("Failed to read %s: %v", *accountsFile, err)
		}
	}
	plan, err := ParsePlan(data)
	if err != nil {
		log.Fatal(err)
	}

	db, err := utils.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	admin := gotrue.NewClient(cfg.AuthURL(), cfg.ServiceRoleKey, cfg.RequestTimeout)

	ctx := context.Background()
	s := &seeder{db: db, admin: admin, plan: plan}
	s.run(ctx)
}

type seeder struct {
	db    *gorm.DB
	admin *gotrue.Client
	plan  *Plan
	ids   []uuid.UUID
}

func (s *seeder) run(ctx context.Context) {
	fmt.Println("\n🌸  Safimatch seed")

	s.ids = make([]uuid.UUID, len(s.plan.Contas))
	for i, acc := range s.plan.Contas {
		id, err := s.ensureUser(ctx, acc)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			continue
		}
		s.ids[i] = id
		log.Printf("[INFO] %s (%s) id=%s", acc.Nome, acc.Email, id)
	}

	fmt.Println("\n📝  Perfis")
	for i, acc := range s.plan.Contas {
		if s.ids[i] == uuid.Nil {
			continue
		}
		if err := s.updateProfile(ctx, s.ids[i], acc); err != nil {
			log.Printf("[ERROR] Profile %s: %v", acc.Email, err)
			continue
		}
		log.Printf("[INFO] Profile of %s updated", acc.Nome)
	}

	fmt.Println("\n💕  Curtidas")
	for _, p := range s.plan.Pares {
		a, b := s.ids[p.De], s.ids[p.Para]
		if a == uuid.Nil || b == uuid.Nil {
			continue
		}
		if err := s.like(ctx, a, b, p.Ida); err != nil {
			log.Printf("[WARN] Like %s -> %s: %v", s.plan.Contas[p.De].Nome, s.plan.Contas[p.Para].Nome, err)
			continue
		}
		if p.Mutual() {
			if err := s.like(ctx, b, a, p.Volta); err != nil {
				log.Printf("[WARN] Like %s -> %s: %v", s.plan.Contas[p.Para].Nome, s.plan.Contas[p.De].Nome, err)
				continue
			}
		}
		arrow := "→"
		if p.Mutual() {
			arrow = "↔"
		}
		log.Printf("[INFO] %s %s %s", s.plan.Contas[p.De].Nome, arrow, s.plan.Contas[p.Para].Nome)
	}

	// 等待数据库触发器创建 match
	fmt.Println("\n💬  Conversas")
	time.Sleep(time.Second)

	for _, conv := range s.plan.Conversas {
		a, b := s.ids[conv.A], s.ids[conv.B]
		names := s.plan.Contas[conv.A].Nome + " ↔ " + s.plan.Contas[conv.B].Nome
		if a == uuid.Nil || b == uuid.Nil {
			continue
		}
		if err := s.converse(ctx, a, b, conv); err != nil {
			log.Printf("[ERROR] Conversation %s: %v", names, err)
			continue
		}
		log.Printf("[INFO] Conversation %s created", names)
	}

	fmt.Println("\n" + strings.Repeat("═", 55))
	fmt.Println("🎉  Seed done. Test accounts:")
	for _, acc := range s.plan.Contas {
		fmt.Printf("  📧  %s\n  🔑  %s\n  👤  %s | %s/%s\n\n", acc.Email, s.plan.Senha, acc.Nome, acc.Cidade, acc.Estado)
	}
}

// ensureUser 创建已确认的账号；已存在时按邮箱查 ID
func (s *seeder) ensureUser(ctx context.Context, acc Account) (uuid.UUID, error) {
	user, err := s.admin.CreateUser(ctx, gotrue.AdminCreateUser{
		Email:        acc.Email,
		Password:     s.plan.Senha,
		EmailConfirm: true,
		UserMetadata: map[string]interface{}{"nome": acc.Nome},
	})
	if err == nil {
		return user.ID, nil
	}

	var gerr *gotrue.Error
	if !errors.As(err, &gerr) || gerr.StatusCode != 422 || !strings.Contains(gerr.Message, "already been registered") {
		return uuid.Nil, fmt.Errorf("failed to create %s: %w", acc.Email, err)
	}

	log.Printf("[WARN] %s already exists, looking up id", acc.Email)
	users, err := s.admin.ListUsers(ctx, 1, 50)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, acc.Email) {
			return u.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%s exists but was not found in the first page of users", acc.Email)
}

func (s *seeder) updateProfile(ctx context.Context, userID uuid.UUID, acc Account) error {
	cols := acc.ProfileUpdate().Columns()
	cols["atualizado_em"] = time.Now()

	res := s.db.WithContext(ctx).Model(&model.Profile{}).Where("user_id = ?", userID).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no profile row for %s (signup trigger missing?)", userID)
	}
	return nil
}

// like 重复的喜欢直接跳过
func (s *seeder) like(ctx context.Context, from, to uuid.UUID, kind model.LikeKind) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Like{DeUserID: from, ParaUserID: to, Tipo: kind}).Error
}

func (s *seeder) converse(ctx context.Context, a, b uuid.UUID, conv Conversation) error {
	var match model.Match
	err := s.db.WithContext(ctx).
		Where("(usuario_a_id = ? AND usuario_b_id = ?) OR (usuario_a_id = ? AND usuario_b_id = ?)", a, b, b, a).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("match not found")
	}
	if err != nil {
		return err
	}

	authors := [2]uuid.UUID{a, b}
	for _, line := range conv.Mensagens {
		texto := line.Texto
		msg := model.Message{
			MatchID:  match.ID,
			DeUserID: authors[line.Autora],
			Conteudo: &texto,
			Tipo:     model.MessageTypeText,
			Lida:     true,
		}
		if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
			return err
		}
	}
	return nil
}
