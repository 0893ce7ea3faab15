package handlers

import (
  "net/http"
  "time"

  "github.com/gin-gonic/gin"

  "github.com/medvault/medvault-backend/internal/logger"
  "github.com/medvault/medvault-backend/internal/repos"
  "github.com/medvault/medvault-backend/internal/services"
  "github.com/medvault/medvault-backend/internal/types"
)

type AuthHandler struct {
  log         *logger.Logger
  authService services.AuthService
  userRepo    repos.UserRepo
  patientRepo repos.PatientRepo
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService, userRepo repos.UserRepo, patientRepo repos.PatientRepo) *AuthHandler {
  return &AuthHandler{
    log:         log.With("handler", "AuthHandler"),
    authService: authService,
    userRepo:    userRepo,
    patientRepo: patientRepo,
  }
}

// POST /api/register
func (ah *AuthHandler) Register(c *gin.Context) {
  var req struct {
    Email       string `json:"email"`
    Password    string `json:"password"`
    Role        string `json:"role"`
    MedicalID   string `json:"medical_id"`
    FirstName   string `json:"first_name"`
    LastName    string `json:"last_name"`
    DateOfBirth string `json:"date_of_birth"`
    Gender      string `json:"gender"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if req.Email == "" || req.Password == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
    return
  }

  existing, err := ah.userRepo.GetByEmail(c.Request.Context(), nil, req.Email)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
    return
  }
  if existing != nil {
    c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
    return
  }

  hash, err := ah.authService.HashPassword(req.Password)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
    return
  }

  role := types.Role(req.Role)
  switch role {
  case types.RolePatient, types.RoleDoctor, types.RoleHospitalManager, types.RoleAdmin:
  case "":
    role = types.RolePatient
  default:
    c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
    return
  }

  var dob time.Time
  if role == types.RolePatient {
    if req.MedicalID == "" || req.FirstName == "" || req.LastName == "" {
      c.JSON(http.StatusBadRequest, gin.H{"error": "medical_id, first_name and last_name are required for patients"})
      return
    }
    if req.DateOfBirth != "" {
      parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
      if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "date_of_birth must be YYYY-MM-DD"})
        return
      }
      dob = parsed
    }
  }

  user := &types.User{
    Email:        req.Email,
    PasswordHash: hash,
    Roles:        []types.UserRole{{Role: role}},
  }
  created, err := ah.userRepo.Create(c.Request.Context(), nil, []*types.User{user})
  if err != nil {
    ah.log.Error("User create failed", "error", err.Error())
    c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
    return
  }

  resp := gin.H{"user_id": created[0].ID}
  if role == types.RolePatient {
    patient := &types.Patient{
      UserID:      created[0].ID,
      MedicalID:   req.MedicalID,
      FirstName:   req.FirstName,
      LastName:    req.LastName,
      DateOfBirth: dob,
      Gender:      req.Gender,
    }
    patients, err := ah.patientRepo.Create(c.Request.Context(), nil, []*types.Patient{patient})
    if err != nil {
      ah.log.Error("Patient profile create failed", "user_id", created[0].ID.String(), "error", err.Error())
      c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
      return
    }
    resp["patient_id"] = patients[0].ID
  }

  c.JSON(http.StatusCreated, resp)
}

// POST /api/login
func (ah *AuthHandler) Login(c *gin.Context) {
  var req struct {
    Email    string `json:"email"`
    Password string `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }

  user, err := ah.userRepo.GetByEmail(c.Request.Context(), nil, req.Email)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
    return
  }
  if user == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
    return
  }
  if err := ah.authService.CheckPassword(user.PasswordHash, req.Password); err != nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
    return
  }

  token, err := ah.authService.IssueToken(user.ID)
  if err != nil {
    ah.log.Error("Token issue failed", "user_id", user.ID.String(), "error", err.Error())
    c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
    return
  }

  c.JSON(http.StatusOK, gin.H{"access_token": token})
}
